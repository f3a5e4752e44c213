package detect

import (
	"context"
	"testing"
	"time"

	"github.com/formward/formward/pkg/store"
)

func TestDuplicateDetector(t *testing.T) {
	ctx := context.Background()
	logs := store.NewMemoryLogStore(0)
	d := NewDuplicateDetector(logs, 24*time.Hour)

	sub := message("hello I would like to ask about your opening hours")

	r, err := d.Check(ctx, sub, "form-1", "visitor-1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Detected {
		t.Fatal("fresh submission should not be a duplicate")
	}

	if _, err := logs.Insert(ctx, store.LogEntry{
		FormID:       "form-1",
		SubmitterKey: "visitor-1",
		PayloadHash:  sub.PayloadHash(),
		Action:       "marked",
	}); err != nil {
		t.Fatal(err)
	}

	r, err = d.Check(ctx, sub, "form-1", "visitor-1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Detected || r.Score != 100 {
		t.Fatalf("identical resubmission should be a maximal hit, got %+v", r)
	}

	// Same payload from a different submitter or form is not a duplicate.
	if r, _ := d.Check(ctx, sub, "form-1", "visitor-2"); r.Detected {
		t.Error("different submitter should not match")
	}
	if r, _ := d.Check(ctx, sub, "form-2", "visitor-1"); r.Detected {
		t.Error("different form should not match")
	}

	// Near-duplicates do not match; this is an exact presence check.
	mutated := message("hello I would like to ask about your opening hours please")
	if r, _ := d.Check(ctx, mutated, "form-1", "visitor-1"); r.Detected {
		t.Error("mutated payload should not match")
	}
}

func TestDuplicateDetectorWindow(t *testing.T) {
	ctx := context.Background()
	logs := store.NewMemoryLogStore(0)
	d := NewDuplicateDetector(logs, time.Hour)

	sub := message("hello I would like to ask about your opening hours")
	if _, err := logs.Insert(ctx, store.LogEntry{
		FormID:       "form-1",
		SubmitterKey: "visitor-1",
		PayloadHash:  sub.PayloadHash(),
		Action:       "marked",
		CreatedAt:    time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	r, err := d.Check(ctx, sub, "form-1", "visitor-1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Detected {
		t.Error("hit outside the lookback window should not count")
	}
}

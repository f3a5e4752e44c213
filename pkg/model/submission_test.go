package model

import "testing"

func TestNewSubmissionGrouping(t *testing.T) {
	sub := NewSubmission([]Field{
		{ID: "name", Kind: KindShortText, Value: "Jamie"},
		{ID: "email", Kind: KindEmail, Value: "jamie@example.com"},
		{ID: "message", Kind: KindLongText, Value: "Hello there"},
		{ID: "blank", Kind: KindShortText, Value: "   "},
	})

	if got := len(sub.Fields()); got != 3 {
		t.Fatalf("retained %d fields, want 3 (blank dropped)", got)
	}
	if got := sub.Values(KindShortText); len(got) != 1 || got[0] != "Jamie" {
		t.Errorf("short_text values = %v", got)
	}
	if got := sub.Joined(KindShortText, KindLongText); got != "Jamie Hello there" {
		t.Errorf("Joined = %q", got)
	}
	if got := sub.AllText(); got != "Jamie jamie@example.com Hello there" {
		t.Errorf("AllText = %q", got)
	}
}

func TestNewSubmissionExclusions(t *testing.T) {
	fields := []Field{
		{ID: "honeypot", Kind: KindHidden, Value: "tracker-123"},
		{ID: "utm_source", Kind: KindShortText, Value: "newsletter"},
		{ID: "message", Kind: KindLongText, Value: "real content"},
	}

	sub := NewSubmission(fields, WithHiddenExcluded(), WithExcludedFields([]string{"utm_source"}))
	if got := len(sub.Fields()); got != 1 {
		t.Fatalf("retained %d fields, want 1", got)
	}
	if sub.Fields()[0].ID != "message" {
		t.Errorf("kept field %q, want message", sub.Fields()[0].ID)
	}
}

func TestSubmissionEmpty(t *testing.T) {
	sub := NewSubmission([]Field{
		{ID: "a", Kind: KindShortText, Value: ""},
		{ID: "b", Kind: KindLongText, Value: "  \n "},
	})
	if !sub.Empty() {
		t.Error("all-blank submission should be Empty")
	}
}

func TestPayloadHash(t *testing.T) {
	base := NewSubmission([]Field{
		{ID: "email", Kind: KindEmail, Value: "spam@example.com"},
		{ID: "message", Kind: KindLongText, Value: "Buy now"},
	})
	recased := NewSubmission([]Field{
		{ID: "email", Kind: KindEmail, Value: "SPAM@Example.com "},
		{ID: "message", Kind: KindLongText, Value: "  BUY NOW"},
	})
	different := NewSubmission([]Field{
		{ID: "email", Kind: KindEmail, Value: "spam@example.com"},
		{ID: "message", Kind: KindLongText, Value: "Buy now!!"},
	})

	if base.PayloadHash() != recased.PayloadHash() {
		t.Error("re-cased payload should hash the same")
	}
	if base.PayloadHash() == different.PayloadHash() {
		t.Error("different payload should hash differently")
	}
	if base.PayloadHash() != base.PayloadHash() {
		t.Error("hash should be stable")
	}
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryCounter(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()

	if n, err := c.Get(ctx, "k"); err != nil || n != 0 {
		t.Fatalf("absent key: n=%d err=%v, want 0", n, err)
	}

	n, err := c.IncrementWithTTL(ctx, "k", time.Second)
	if err != nil || n != 1 {
		t.Fatalf("first increment: n=%d err=%v, want 1", n, err)
	}
	n, _ = c.IncrementWithTTL(ctx, "k", time.Second)
	if n != 2 {
		t.Fatalf("second increment: n=%d, want 2", n)
	}

	if err := c.Clear(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Get(ctx, "k"); n != 0 {
		t.Fatalf("cleared key: n=%d, want 0", n)
	}
}

func TestMemoryCounterExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()

	if _, err := c.IncrementWithTTL(ctx, "k", 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)

	if n, _ := c.Get(ctx, "k"); n != 0 {
		t.Fatalf("expired key should read 0, got %d", n)
	}
	// A fresh increment after expiry starts a new window at 1.
	if n, _ := c.IncrementWithTTL(ctx, "k", time.Second); n != 1 {
		t.Fatalf("increment after expiry: n=%d, want 1", n)
	}
}

func newRedisCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCounter(rdb, "test"), mr
}

func TestRedisCounter(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCounter(t)

	if n, err := c.Get(ctx, "strikes:f:v"); err != nil || n != 0 {
		t.Fatalf("absent key: n=%d err=%v", n, err)
	}

	n, err := c.IncrementWithTTL(ctx, "strikes:f:v", 15*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("first increment: n=%d err=%v", n, err)
	}
	n, _ = c.IncrementWithTTL(ctx, "strikes:f:v", 15*time.Minute)
	if n != 2 {
		t.Fatalf("second increment: n=%d, want 2", n)
	}

	// ExpireNX keeps the original window: the second increment must not
	// have pushed the expiry out.
	mr.FastForward(16 * time.Minute)
	if n, _ := c.Get(ctx, "strikes:f:v"); n != 0 {
		t.Fatalf("key should expire with the first window, got %d", n)
	}

	n, _ = c.IncrementWithTTL(ctx, "strikes:f:v", 15*time.Minute)
	if n != 1 {
		t.Fatalf("increment after expiry: n=%d, want 1", n)
	}
	if err := c.Clear(ctx, "strikes:f:v"); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Get(ctx, "strikes:f:v"); n != 0 {
		t.Fatalf("cleared key: n=%d, want 0", n)
	}
}

func TestMemoryLogStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLogStore(0)

	id, err := s.Insert(ctx, LogEntry{
		FormID:       "f",
		SubmitterKey: "v",
		PayloadHash:  "hash-1",
		Score:        0.8,
		Method:       "pattern",
		Action:       "marked",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("Insert should assign an ID")
	}

	hashes, err := s.FindRecentHashes(ctx, "f", "v", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes[0] != "hash-1" {
		t.Fatalf("hashes = %v", hashes)
	}

	if hashes, _ := s.FindRecentHashes(ctx, "f", "other", time.Now().Add(-time.Hour)); len(hashes) != 0 {
		t.Errorf("other submitter should see no hashes, got %v", hashes)
	}
}

func TestMemoryLogStoreCleanOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLogStore(0)

	old := LogEntry{FormID: "f", SubmitterKey: "v", PayloadHash: "old", Action: "marked", CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := LogEntry{FormID: "f", SubmitterKey: "v", PayloadHash: "fresh", Action: "marked"}
	for _, e := range []LogEntry{old, fresh} {
		if _, err := s.Insert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.CleanOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	hashes, _ := s.FindRecentHashes(ctx, "f", "v", time.Now().Add(-72*time.Hour))
	if len(hashes) != 1 || hashes[0] != "fresh" {
		t.Fatalf("surviving hashes = %v", hashes)
	}
}

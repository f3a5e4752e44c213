package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCounter is a process-local Counter for single-instance deployments
// and tests. Expired entries are dropped lazily and compacted when the map
// grows.
type MemoryCounter struct {
	mu    sync.Mutex
	items map[string]memEntry
}

type memEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{items: make(map[string]memEntry)}
}

func (c *MemoryCounter) Get(_ context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(c.items, key)
		return 0, nil
	}
	return e.count, nil
}

func (c *MemoryCounter) IncrementWithTTL(_ context.Context, key string, ttl time.Duration) (int, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || now.After(e.expiresAt) {
		e = memEntry{count: 0, expiresAt: now.Add(ttl)}
	}
	e.count++
	c.items[key] = e
	if len(c.items) > 10000 {
		c.compact(now)
	}
	return e.count, nil
}

func (c *MemoryCounter) Clear(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCounter) compact(now time.Time) {
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
}

// MemoryLogStore keeps log rows in memory, bounded to the most recent
// maxRows. Meant for tests and setups without a database.
type MemoryLogStore struct {
	mu      sync.Mutex
	rows    []LogEntry
	maxRows int
}

func NewMemoryLogStore(maxRows int) *MemoryLogStore {
	if maxRows <= 0 {
		maxRows = 5000
	}
	return &MemoryLogStore{maxRows: maxRows}
}

func (s *MemoryLogStore) Insert(_ context.Context, e LogEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, e)
	if len(s.rows) > s.maxRows {
		s.rows = s.rows[len(s.rows)-s.maxRows:]
	}
	return e.ID, nil
}

func (s *MemoryLogStore) FindRecentHashes(_ context.Context, formID, submitterKey string, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hashes []string
	for _, r := range s.rows {
		if r.FormID == formID && r.SubmitterKey == submitterKey && !r.CreatedAt.Before(since) {
			hashes = append(hashes, r.PayloadHash)
		}
	}
	return hashes, nil
}

func (s *MemoryLogStore) CleanOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var removed int64
	for _, r := range s.rows {
		if r.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return removed, nil
}

func (s *MemoryLogStore) Close() error { return nil }

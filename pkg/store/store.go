// Package store provides the two narrow persistence contracts the decision
// engine needs: a TTL counter for strikes and moderation rate limits, and a
// log store for spam events and duplicate lookups.
package store

import (
	"context"
	"time"
)

// Counter is a time-boxed counter with atomic increment semantics. Both the
// strike ledger and the moderation rate limiter are Counters keyed by
// submitter identity; concurrent increments (double-click submissions) must
// not lose updates, so implementations use atomic increment-with-TTL rather
// than read-modify-write.
type Counter interface {
	// Get returns the current count, or 0 when the key is absent/expired.
	Get(ctx context.Context, key string) (int, error)
	// IncrementWithTTL atomically increments the key and starts the TTL
	// window on first increment. Returns the new count.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int, error)
	// Clear removes the key.
	Clear(ctx context.Context, key string) error
}

// LogEntry is one persisted spam-log row.
type LogEntry struct {
	ID           string
	FormID       string
	SubmitterKey string
	PayloadHash  string
	Score        float64
	Method       string // comma-joined detector names that flagged
	Details      string // JSON evidence bundle
	Action       string // rejected | marked | soft_warning | corrected | allowed
	CreatedAt    time.Time
}

// LogStore records spam events and serves duplicate lookups. Losing a log
// write is non-fatal to an evaluation; callers log the error and move on.
type LogStore interface {
	Insert(ctx context.Context, e LogEntry) (string, error)
	// FindRecentHashes returns payload hashes logged for the same form and
	// submitter since the given time.
	FindRecentHashes(ctx context.Context, formID, submitterKey string, since time.Time) ([]string, error)
	// CleanOlderThan removes rows older than cutoff and reports how many.
	CleanOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

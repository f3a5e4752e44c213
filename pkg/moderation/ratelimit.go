package moderation

import (
	"context"
	"time"

	"github.com/formward/formward/pkg/store"
)

// DefaultCallsPerHour is the per-submitter moderation budget.
const DefaultCallsPerHour = 60

// RateLimiter bounds moderation calls per submitter using an atomic
// counter with TTL. Concurrent submissions from the same submitter race
// on the counter, not on a read-modify-write in process memory.
type RateLimiter struct {
	counter store.Counter
	limit   int
	window  time.Duration
}

func NewRateLimiter(counter store.Counter, callsPerHour int) *RateLimiter {
	if callsPerHour <= 0 {
		callsPerHour = DefaultCallsPerHour
	}
	return &RateLimiter{
		counter: counter,
		limit:   callsPerHour,
		window:  time.Hour,
	}
}

// Allow records one call attempt for the submitter and reports whether it
// is inside the budget. A counter-store failure counts as allowed: losing
// rate-limit accounting must not silence moderation entirely.
func (r *RateLimiter) Allow(ctx context.Context, submitterKey string) error {
	if r.counter == nil {
		return nil
	}
	n, err := r.counter.IncrementWithTTL(ctx, "modcalls:"+submitterKey, r.window)
	if err != nil {
		return nil
	}
	if n > r.limit {
		return &RateLimitError{SubmitterKey: submitterKey, Limit: r.limit}
	}
	return nil
}

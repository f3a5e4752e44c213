package moderation

import "fmt"

// ConfigError means the client cannot run at all (missing API key). The
// engine treats it as "moderation skipped", not as a spam signal.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("moderation not configured: missing %s", e.Missing)
}

// ServiceError covers network failures, timeouts, and non-2xx responses
// from the moderation endpoint.
type ServiceError struct {
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("moderation service error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("moderation service error: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// RateLimitError means the per-submitter call budget is exhausted. The
// call is skipped and the signal degrades to neutral.
type RateLimitError struct {
	SubmitterKey string
	Limit        int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("moderation rate limit reached for %s (limit %d/hour)", e.SubmitterKey, e.Limit)
}

// ParseError means the endpoint answered 2xx but the body could not be
// interpreted as either response shape.
type ParseError struct {
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("moderation response unparseable: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

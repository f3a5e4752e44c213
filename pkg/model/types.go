// Package model holds the data types shared by the detectors, the decision
// engine and the stores: submissions, per-check results, aggregates and the
// final verdict.
package model

import "time"

// FieldKind is the semantic type of a submitted form field.
type FieldKind string

const (
	KindShortText FieldKind = "short_text"
	KindLongText  FieldKind = "long_text"
	KindEmail     FieldKind = "email"
	KindURL       FieldKind = "url"
	KindPhone     FieldKind = "phone"
	KindHidden    FieldKind = "hidden"
)

// DetectorResult is the outcome of a single check inside a detector.
// Score is on a 0-100 scale; normalization to [0,1] happens once at
// aggregation time. Checks within a detector are independent: the detector's
// contribution is the maximum score among its checks, never a sum, so
// correlated signals cannot pile up.
type DetectorResult struct {
	Check       string         `json:"check"`
	Score       float64        `json:"score"`
	Detected    bool           `json:"detected"`
	Reason      string         `json:"reason,omitempty"`
	SoftWarning bool           `json:"soft_warning,omitempty"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}

// ModerationSignal is the external moderation verdict merged into the
// aggregate. Error marks inconclusive results (timeout, rate limit, parse
// failure) that carry a neutral score and must never force a block on their
// own.
type ModerationSignal struct {
	Score   float64 `json:"score"` // normalized [0,1]
	IsSpam  bool    `json:"is_spam"`
	Reason  string  `json:"reason,omitempty"`
	Error   bool    `json:"error,omitempty"`
	Invoked bool    `json:"invoked"`
}

// AggregateResult is the evidence bundle attached to a Verdict.
type AggregateResult struct {
	NormalizedScore   float64                     `json:"normalized_score"` // [0,1]
	Signals           map[string][]DetectorResult `json:"signals"`
	Moderation        ModerationSignal            `json:"moderation"`
	ModerationInvoked bool                        `json:"moderation_invoked"`
	DuplicateHit      bool                        `json:"duplicate_hit,omitempty"`
}

// Action is the graduated enforcement response.
type Action string

const (
	ActionAllow       Action = "allow"
	ActionSoftWarning Action = "soft_warning"
	ActionBlock       Action = "block"
)

// Verdict is the final decision for one submission. It is produced once per
// evaluation and consumed immediately by the caller; the engine never
// persists it.
type Verdict struct {
	ID       string          `json:"id"`
	IsSpam   bool            `json:"is_spam"`
	Action   Action          `json:"action"`
	Score    float64         `json:"score"` // [0,1]
	Strikes  int             `json:"strikes"`
	Evidence AggregateResult `json:"evidence"`
}

// AmbientContext carries the request-level behavioral signals. The engine
// never fetches these itself; the caller supplies them.
//
// HasElapsed distinguishes "timer reports zero" from "no timer at all":
// a missing timer means the timing check cannot run, while a missing
// referrer is itself weak evidence and is still scored.
type AmbientContext struct {
	Elapsed    time.Duration `json:"elapsed"`
	HasElapsed bool          `json:"has_elapsed"`
	UserAgent  string        `json:"user_agent"`
	Referrer   string        `json:"referrer"`
	SiteOrigin string        `json:"site_origin"`
}

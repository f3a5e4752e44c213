package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Field is one submitted form value with its semantic classification.
type Field struct {
	ID    string    `json:"id"`
	Kind  FieldKind `json:"kind"`
	Value string    `json:"value"`
}

// Submission is an immutable, normalized view of one form submission. Field
// order is preserved; a grouping by semantic kind is derived once at build
// time. Build a fresh Submission per request.
type Submission struct {
	fields  []Field
	grouped map[FieldKind][]string
}

// SubmissionOption adjusts how a Submission is built.
type SubmissionOption func(*submissionOptions)

type submissionOptions struct {
	excludeHidden  bool
	excludedFields map[string]bool
}

// WithHiddenExcluded drops hidden-kind fields from the submission entirely.
func WithHiddenExcluded() SubmissionOption {
	return func(o *submissionOptions) { o.excludeHidden = true }
}

// WithExcludedFields drops the named field IDs (e.g. campaign/tracking
// fields) from analysis.
func WithExcludedFields(ids []string) SubmissionOption {
	return func(o *submissionOptions) {
		for _, id := range ids {
			o.excludedFields[id] = true
		}
	}
}

// NewSubmission builds a Submission from ordered fields.
func NewSubmission(fields []Field, opts ...SubmissionOption) *Submission {
	o := submissionOptions{excludedFields: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Submission{grouped: make(map[FieldKind][]string)}
	for _, f := range fields {
		if o.excludedFields[f.ID] {
			continue
		}
		if f.Kind == KindHidden && o.excludeHidden {
			continue
		}
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		s.fields = append(s.fields, f)
		s.grouped[f.Kind] = append(s.grouped[f.Kind], f.Value)
	}
	return s
}

// Fields returns the retained fields in submission order.
func (s *Submission) Fields() []Field { return s.fields }

// Values returns the values of all fields of the given kind.
func (s *Submission) Values(kind FieldKind) []string { return s.grouped[kind] }

// Joined concatenates the values of the given kinds with single spaces.
func (s *Submission) Joined(kinds ...FieldKind) string {
	var parts []string
	for _, k := range kinds {
		parts = append(parts, s.grouped[k]...)
	}
	return strings.Join(parts, " ")
}

// AllText concatenates every retained value, regardless of kind.
func (s *Submission) AllText() string {
	parts := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		parts = append(parts, f.Value)
	}
	return strings.Join(parts, " ")
}

// Empty reports whether no non-blank field survived construction.
func (s *Submission) Empty() bool { return len(s.fields) == 0 }

// PayloadHash returns a stable sha256 hex digest of the semantic payload,
// used for duplicate lookups and log rows. Case and surrounding whitespace
// are ignored so trivially re-cased resubmissions still collide.
func (s *Submission) PayloadHash() string {
	h := sha256.New()
	for _, f := range s.fields {
		h.Write([]byte(string(f.Kind)))
		h.Write([]byte{0})
		h.Write([]byte(strings.ToLower(strings.TrimSpace(f.Value))))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Package sanitize strips active markup from caller-supplied note
// content before it is persisted. The API stores plain text; any HTML
// a caller smuggles into a title or body is treated as an injection
// attempt and removed, not escaped, so that what is stored is what
// every client renders.
//
// Sanitization is idempotent: running it over already-clean text
// returns the text unchanged, so values read back from storage can be
// passed through again without drift.
package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer removes markup from strings using a fixed strict policy
// that allows no elements and no attributes. It is safe for concurrent
// use by multiple goroutines.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New creates a Sanitizer with the strict no-markup policy.
func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean returns s with all HTML elements removed. Plain text passes
// through unchanged.
func (s *Sanitizer) Clean(in string) string {
	return s.policy.Sanitize(in)
}

// CleanPtr sanitizes the value a string pointer refers to, preserving
// nil. Used for optional fields where nil and empty are distinct.
func (s *Sanitizer) CleanPtr(in *string) *string {
	if in == nil {
		return nil
	}
	out := s.Clean(*in)
	return &out
}

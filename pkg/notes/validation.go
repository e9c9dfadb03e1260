package notes

import (
	"encoding/json"
	"unicode/utf8"

	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// Title length bounds, counted in Unicode code points so multi-byte
// titles are not penalized.
const (
	minTitleLen = 1
	maxTitleLen = 255
)

// CreateInput is the payload for creating a note. Title is required;
// Content is optional and may be explicitly null.
type CreateInput struct {
	Title   string  `json:"title"`
	Content *string `json:"content"`
}

// UpdateInput is the payload for updating a note. All fields are
// optional; absent fields leave the stored value unchanged.
type UpdateInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Empty reports whether the update names no fields at all.
func (in UpdateInput) Empty() bool {
	return in.Title == nil && in.Content == nil
}

// ParseCreateInput decodes and validates a note-creation payload.
func ParseCreateInput(body string) (CreateInput, error) {
	var in CreateInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return CreateInput{}, nwerr.Wrap(err, nwerr.CodeValidationFormat,
			"notes: request body is not valid JSON")
	}
	if err := validateTitle(in.Title); err != nil {
		return CreateInput{}, err
	}
	return in, nil
}

// ParseUpdateInput decodes and validates a note-update payload. Fields
// the payload omits stay nil; a title, when present, must satisfy the
// same bounds as at creation.
func ParseUpdateInput(body string) (UpdateInput, error) {
	var in UpdateInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return UpdateInput{}, nwerr.Wrap(err, nwerr.CodeValidationFormat,
			"notes: request body is not valid JSON")
	}
	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return UpdateInput{}, err
		}
	}
	return in, nil
}

// validateTitle enforces the title length bounds.
func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	switch {
	case n < minTitleLen:
		return nwerr.New(nwerr.CodeValidationRequired,
			"notes: title must not be empty")
	case n > maxTitleLen:
		return nwerr.Newf(nwerr.CodeValidationRange,
			"notes: title must be at most %d characters, got %d", maxTitleLen, n)
	default:
		return nil
	}
}

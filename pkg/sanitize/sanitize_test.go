package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	s := New()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Grocery list", "Grocery list"},
		{"empty string", "", ""},
		{"script stripped", `<script>alert("x")</script>Grocery list`, "Grocery list"},
		{"inline tags stripped", "My <b>bold</b> plan", "My bold plan"},
		{"img with handler stripped", `<img src=x onerror=alert(1)>note`, "note"},
		{"anchor stripped keeps text", `<a href="https://evil.example">click</a>`, "click"},
		{"unicode preserved", "メモ 📝 naïve", "メモ 📝 naïve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Clean(tt.in))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	s := New()

	inputs := []string{
		"plain text",
		`<script>alert("x")</script>hello`,
		"<div><p>nested</p></div>",
		"already & escaped",
	}

	for _, in := range inputs {
		once := s.Clean(in)
		twice := s.Clean(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestCleanPtr(t *testing.T) {
	s := New()

	assert.Nil(t, s.CleanPtr(nil))

	in := "<b>body</b>"
	out := s.CleanPtr(&in)
	require.NotNil(t, out)
	assert.Equal(t, "body", *out)
	assert.Equal(t, "<b>body</b>", in, "input must not be mutated")
}

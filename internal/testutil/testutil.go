// Package testutil provides shared test helpers for the notewell-core
// test suites. It is internal: only this module's own tests may import
// it.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// RequireErrorCode asserts that err is a [*nwerr.Error] carrying the
// expected code, failing the test immediately otherwise.
func RequireErrorCode(t *testing.T, err error, code nwerr.Code) {
	t.Helper()
	require.Error(t, err)
	e, ok := nwerr.AsError(err)
	require.True(t, ok, "expected *nwerr.Error, got %T: %v", err, err)
	require.Equal(t, code, e.Code, "unexpected error code for: %v", err)
}

// AssertErrorCode is the non-fatal variant of [RequireErrorCode].
func AssertErrorCode(t *testing.T, err error, code nwerr.Code) bool {
	t.Helper()
	if !assert.Error(t, err) {
		return false
	}
	e, ok := nwerr.AsError(err)
	if !assert.True(t, ok, "expected *nwerr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, e.Code, "unexpected error code for: %v", err)
}

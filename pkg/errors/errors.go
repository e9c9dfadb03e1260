// Package errors provides structured error types and helpers for the
// Notewell auth/authz core. It defines the error taxonomy shared by the
// identity resolvers, the signing-key cache, the note store, and the
// operation handlers, so that transport-level status mapping happens in
// exactly one place.
//
// # Error Categories
//
// The categories map to the failure taxonomy of the note API:
//
//   - Validation errors: malformed payloads, title length violations
//   - Authentication errors: missing, malformed, expired, or unverifiable
//     bearer credentials; unknown signing keys; incomplete identities
//   - Authorization errors: ownership denials
//   - NotFound errors: missing notes or accounts
//   - Conflict errors: unique-key violations on account upsert
//   - Internal errors: unexpected store or provider faults
//   - Unavailable errors: exhausted key-fetch budget, unreachable provider
//   - Timeout errors: bounded outbound calls exceeding their deadline
//
// # Error Codes
//
// Each error carries a machine-readable code (e.g., "AUTH_004") following
// the pattern CATEGORY_XXX. Codes are stable and unique; handlers branch on
// codes rather than on message text.
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeAuthenticationInvalid, "bearer token is malformed")
//
// Wrap an underlying cause:
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "failed to load note")
//
// Branch on category:
//
//	if errors.IsAuthentication(err) {
//	    // reject the request
//	}
package errors

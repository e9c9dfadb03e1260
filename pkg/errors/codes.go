package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., VAL, AUTH, INT) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: Codes do not change once assigned
//   - Unique: Each error condition has a distinct code
//   - Machine-readable: Suitable for automated error handling
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	NF_xxx      - Not found errors (404 Not Found)
//	CONF_xxx    - Conflict errors (409 Conflict)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
//
// Note that the operation handlers deliberately flatten several of these
// categories to 400 on the wire (see pkg/notes); the HTTP mapping here is
// the canonical one and the handlers own the divergence.
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when a request payload fails validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format
	// (e.g., a non-numeric note id in the request path).
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside its acceptable
	// range (e.g., a note title longer than 255 characters).
	CodeValidationRange Code = "VAL_004"

	// Authentication errors (AUTH_xxx) - HTTP 401
	// Used when the bearer credential cannot establish an identity.

	// CodeAuthentication indicates a general authentication failure,
	// including identity-provider introspection errors.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the bearer token has expired.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the bearer token is malformed
	// or its signature, audience, or issuer does not verify.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationUnknownKey indicates the token references a
	// signing key id that the discovery endpoint does not list.
	CodeAuthenticationUnknownKey Code = "AUTH_004"

	// CodeAuthenticationIncomplete indicates the credential verified but
	// the identity attributes (email, name, picture) are absent.
	CodeAuthenticationIncomplete Code = "AUTH_005"

	// Authorization errors (AUTHZ_xxx) - HTTP 403
	// Used when a resolved identity does not own the target note.

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates the caller does not own the note.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// Not found errors (NF_xxx) - HTTP 404
	// Used when a requested record does not exist.

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundNote indicates the requested note was not found.
	CodeNotFoundNote Code = "NF_002"

	// Conflict errors (CONF_xxx) - HTTP 409
	// Used when an operation conflicts with current state.

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// Internal errors (INT_xxx) - HTTP 500
	// Used for unexpected internal failures.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503
	// Used when a dependency is temporarily unavailable.

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates the identity provider or the
	// database is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableKeyBudget indicates the request budget against the
	// key-discovery endpoint is exhausted and no cached key exists.
	CodeUnavailableKeyBudget Code = "UNAVAIL_003"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504
	// Used when an outbound call exceeds its time limit.

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"

	// CodeTimeoutDependency indicates a call to the identity provider or
	// the key-discovery endpoint timed out.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

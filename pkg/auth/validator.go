package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Metadata field names the local-verification strategy reads identity
// attributes from. Lookups are case-insensitive, so "email" and "Email"
// are equivalent.
const (
	HeaderIdentityEmail   = "Email"
	HeaderIdentityName    = "Name"
	HeaderIdentityPicture = "Picture"
)

// InvalidReason classifies why local token validation rejected a
// credential. The reasons are mutually exclusive: validation stops at
// the first failed check.
type InvalidReason string

const (
	// ReasonMalformedToken: the credential is empty, not of the form
	// "scheme token", not three dot-separated segments, or its header
	// segment does not decode to a usable key identifier.
	ReasonMalformedToken InvalidReason = "malformed-token"

	// ReasonUnknownKey: no signing key for the token's kid could be
	// obtained, whether because the provider does not list it or
	// because the discovery budget was exhausted.
	ReasonUnknownKey InvalidReason = "unknown-key"

	// ReasonSignatureMismatch: the signature does not verify against
	// the resolved key.
	ReasonSignatureMismatch InvalidReason = "signature-mismatch"

	// ReasonAudienceMismatch: the aud claim does not include the
	// expected audience.
	ReasonAudienceMismatch InvalidReason = "audience-mismatch"

	// ReasonIssuerMismatch: the iss claim names neither the expected
	// issuer nor its trailing-slash form.
	ReasonIssuerMismatch InvalidReason = "issuer-mismatch"

	// ReasonExpired: the token's expiry has passed.
	ReasonExpired InvalidReason = "expired"

	// ReasonMissingIdentity: the token verified but the request
	// metadata does not carry all identity attributes.
	ReasonMissingIdentity InvalidReason = "missing-identity-attributes"
)

// Outcome is the result of local token validation: either a resolved
// identity or a classified rejection, never both.
type Outcome struct {
	Identity Identity
	Reason   InvalidReason
}

// Valid reports whether validation succeeded.
func (o Outcome) Valid() bool {
	return o.Reason == ""
}

// invalid builds a rejection outcome.
func invalid(reason InvalidReason) Outcome {
	return Outcome{Reason: reason}
}

// TokenValidator verifies signed bearer tokens against a provider key
// set. It is stateless apart from the injected [KeyResolver] and safe
// for concurrent use.
type TokenValidator struct {
	keys     KeyResolver
	issuer   string // canonical form, no trailing slash
	audience string
	tracer   trace.Tracer
}

// NewTokenValidator creates a validator that accepts tokens issued by
// issuerURL (with or without a trailing slash) for the given audience,
// resolving signing keys through keys.
func NewTokenValidator(keys KeyResolver, issuerURL, audience string) *TokenValidator {
	return &TokenValidator{
		keys:     keys,
		issuer:   strings.TrimRight(issuerURL, "/"),
		audience: audience,
		tracer:   otel.Tracer(tracerName),
	}
}

// tokenHeader is the decoded first segment of a token, limited to the
// members validation needs.
type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Validate checks the bearer credential in authorization and, on
// success, derives the caller identity from meta. Checks run in a fixed
// order and stop at the first failure:
//
//  1. credential shape ("scheme token", three segments, decodable
//     header with a kid)
//  2. signing-key resolution for the kid
//  3. signature verification with the key's algorithm
//  4. expiry
//  5. audience
//  6. issuer (trailing-slash form accepted)
//  7. identity attributes present in meta
//
// Note: the identity attributes come from unsigned request metadata, not
// from the verified claims. The signature proves only that the provider
// issued the token; it does not bind the attributes to it. See the
// package documentation.
func (v *TokenValidator) Validate(ctx context.Context, authorization string, meta Metadata) Outcome {
	_, span := v.tracer.Start(ctx, "auth.TokenValidator.Validate")
	defer span.End()

	outcome := v.validate(ctx, authorization, meta)
	if outcome.Valid() {
		span.SetAttributes(attribute.Bool("token.valid", true))
	} else {
		span.SetAttributes(
			attribute.Bool("token.valid", false),
			attribute.String("token.invalid_reason", string(outcome.Reason)),
		)
	}
	return outcome
}

func (v *TokenValidator) validate(ctx context.Context, authorization string, meta Metadata) Outcome {
	raw, ok := bearerToken(authorization)
	if !ok {
		return invalid(ReasonMalformedToken)
	}

	header, ok := decodeHeader(raw)
	if !ok || header.Kid == "" {
		return invalid(ReasonMalformedToken)
	}

	key, err := v.keys.GetKey(ctx, header.Kid)
	if err != nil {
		// Unknown kid and exhausted discovery budget are
		// indistinguishable to the caller: in both cases no key was
		// available to verify with.
		return invalid(ReasonUnknownKey)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return key.Key, nil },
		jwt.WithValidMethods([]string{key.Algorithm}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return invalid(classifyTokenError(err))
	}

	iss, _ := claims.GetIssuer()
	if iss != v.issuer && iss != v.issuer+"/" {
		return invalid(ReasonIssuerMismatch)
	}

	identity := Identity{
		Email:   meta.Get(HeaderIdentityEmail),
		Name:    meta.Get(HeaderIdentityName),
		Picture: meta.Get(HeaderIdentityPicture),
	}
	if identity.Email == "" || identity.Name == "" || identity.Picture == "" {
		return invalid(ReasonMissingIdentity)
	}

	return Outcome{Identity: identity}
}

// bearerToken extracts the token from an Authorization header value of
// the form "scheme token". The scheme itself is not checked; the
// signature check decides whether the token is trustworthy.
func bearerToken(authorization string) (string, bool) {
	fields := strings.Fields(authorization)
	if len(fields) != 2 {
		return "", false
	}
	return fields[1], true
}

// decodeHeader decodes the token's first dot-separated segment as a
// base64url JSON header.
func decodeHeader(raw string) (tokenHeader, bool) {
	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return tokenHeader{}, false
	}

	data, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return tokenHeader{}, false
	}

	var header tokenHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return tokenHeader{}, false
	}
	return header, true
}

// classifyTokenError maps the parse library's sentinel errors onto the
// fixed rejection reasons. Expiry is checked before audience by the
// library, matching the documented check order.
func classifyTokenError(err error) InvalidReason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformedToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonAudienceMismatch
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonIssuerMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ReasonSignatureMismatch
	default:
		return ReasonSignatureMismatch
	}
}

// TokenHash returns a short SHA-256 digest prefix of a credential for
// correlation in logs and traces. The raw credential itself must never
// be logged.
func TokenHash(authorization string) string {
	sum := sha256.Sum256([]byte(authorization))
	return hex.EncodeToString(sum[:8])
}

package auth

import (
	"context"

	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// LocalResolver adapts a [TokenValidator] to the [IdentityResolver]
// interface, turning validation outcomes into the same error shape the
// introspection strategy produces. It never talks to the provider
// except through the validator's key cache.
//
// LocalResolver is safe for concurrent use.
type LocalResolver struct {
	validator *TokenValidator
}

var _ IdentityResolver = (*LocalResolver)(nil)

// NewLocalResolver wraps validator as an IdentityResolver.
func NewLocalResolver(validator *TokenValidator) *LocalResolver {
	return &LocalResolver{validator: validator}
}

// Resolve validates the credential locally and returns the derived
// identity. Rejections are returned as AUTH-category errors carrying
// the validation reason in the "reason" detail.
func (r *LocalResolver) Resolve(ctx context.Context, authorization string, meta Metadata) (Identity, error) {
	outcome := r.validator.Validate(ctx, authorization, meta)
	if !outcome.Valid() {
		return Identity{}, reasonError(outcome.Reason)
	}
	return outcome.Identity, nil
}

// reasonError maps a rejection reason onto the error taxonomy.
func reasonError(reason InvalidReason) *nwerr.Error {
	var code nwerr.Code
	switch reason {
	case ReasonExpired:
		code = nwerr.CodeAuthenticationExpired
	case ReasonUnknownKey:
		code = nwerr.CodeAuthenticationUnknownKey
	case ReasonMissingIdentity:
		code = nwerr.CodeAuthenticationIncomplete
	default:
		code = nwerr.CodeAuthenticationInvalid
	}
	return nwerr.Newf(code, "auth: credential rejected: %s", reason).
		WithDetail("reason", string(reason))
}

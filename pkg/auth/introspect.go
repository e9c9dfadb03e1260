package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// maxIntrospectionResponseSize caps the provider response body at 1 MiB.
const maxIntrospectionResponseSize = 1 << 20

// Detail keys carried on introspection errors so handlers can surface
// the provider's verdict to the caller.
const (
	DetailProviderStatus  = "provider_status"
	DetailProviderMessage = "provider_message"
)

// IntrospectionResolver resolves identities by forwarding the caller's
// bearer credential to the identity provider's /userinfo endpoint and
// trusting its response. Every request costs a round trip to the
// provider; prefer [LocalResolver] where that latency matters.
//
// IntrospectionResolver is safe for concurrent use.
type IntrospectionResolver struct {
	userinfoURL string
	client      HTTPClient
	tracer      trace.Tracer
}

var _ IdentityResolver = (*IntrospectionResolver)(nil)

// NewIntrospectionResolver creates a resolver against the provider at
// issuerURL, calling its /userinfo endpoint with client.
func NewIntrospectionResolver(issuerURL string, client HTTPClient) *IntrospectionResolver {
	return &IntrospectionResolver{
		userinfoURL: strings.TrimRight(issuerURL, "/") + "/userinfo",
		client:      client,
		tracer:      otel.Tracer(tracerName),
	}
}

// userinfoResponse mirrors the provider's profile payload, limited to
// the attributes the note API consumes.
type userinfoResponse struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Resolve forwards the credential to the provider and returns the
// identity it reports. The meta argument is ignored; introspection
// trusts only the provider.
//
// A non-2xx provider response fails resolution with
// [nwerr.CodeAuthentication], carrying the provider's status code and
// status message in the error details under [DetailProviderStatus] and
// [DetailProviderMessage]. A profile without an email fails with
// [nwerr.CodeAuthenticationIncomplete].
func (r *IntrospectionResolver) Resolve(ctx context.Context, authorization string, _ Metadata) (Identity, error) {
	ctx, span := r.tracer.Start(ctx, "auth.IntrospectionResolver.Resolve",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	if authorization == "" {
		return Identity{}, nwerr.Unauthenticated("auth: no credential to introspect")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.userinfoURL, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Identity{}, nwerr.Wrap(err, nwerr.CodeInternal,
			"auth: failed to build introspection request")
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "identity introspection failed",
			slog.String("token_hash", TokenHash(authorization)),
			slog.String("error", err.Error()),
		)
		if ctx.Err() == context.DeadlineExceeded {
			return Identity{}, nwerr.Wrap(err, nwerr.CodeTimeoutDependency,
				"auth: introspection request timed out")
		}
		return Identity{}, nwerr.Wrap(err, nwerr.CodeUnavailableDependency,
			"auth: introspection request failed")
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIntrospectionResponseSize))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Identity{}, nwerr.Wrap(err, nwerr.CodeUnavailableDependency,
			"auth: failed to read introspection response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return Identity{}, nwerr.Newf(nwerr.CodeAuthentication,
			"auth: provider rejected credential with status %d", resp.StatusCode).
			WithDetail(DetailProviderStatus, resp.StatusCode).
			WithDetail(DetailProviderMessage, providerMessage(resp))
	}

	var profile userinfoResponse
	if err := json.Unmarshal(body, &profile); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Identity{}, nwerr.Wrap(err, nwerr.CodeUnavailableDependency,
			"auth: failed to parse introspection response")
	}

	if profile.Email == "" {
		return Identity{}, nwerr.New(nwerr.CodeAuthenticationIncomplete,
			"auth: provider profile has no email")
	}

	return Identity{
		Email:   profile.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
	}, nil
}

// providerMessage derives the human-readable message to surface for a
// provider rejection: the standard text for the status code.
func providerMessage(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

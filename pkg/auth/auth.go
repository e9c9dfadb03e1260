// Package auth establishes caller identity for the Notewell note API.
//
// Two interchangeable resolution strategies exist, selected by deployment
// configuration rather than duplicated handler code:
//
//   - Remote introspection ([IntrospectionResolver]): forwards the caller's
//     bearer credential to the identity provider's /userinfo endpoint and
//     trusts its response verbatim.
//   - Local verification ([LocalResolver]): validates the signed token
//     locally against a cached, rotating public-key set fetched from the
//     provider's key-discovery endpoint ([KeyCache]), then derives identity
//     attributes from request metadata.
//
// Both strategies produce the same [Identity] shape or fail with a uniform
// authentication error, decoupling the note operation handlers from the
// strategy in use.
//
// Security:
//
// In the local-verification path, signature verification proves the token's
// authenticity but the identity attributes are read from unsigned transport
// metadata, not from the token's own claims. This is a documented weak
// coupling carried over from the deployed behavior; see the note on
// [TokenValidator.Validate]. Do not extend it — bind attributes into the
// verified claims instead if the provider ever supports that.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for auth spans.
const tracerName = "github.com/notewell/notewell-core/pkg/auth"

// DefaultAudience is the audience claim every Notewell API token must carry.
const DefaultAudience = "note-app-api"

// DefaultIssuerURL is the canonical issuer of the Notewell identity
// provider. The provider is inconsistent about trailing slashes, so the
// validator accepts the issuer claim with or without one.
const DefaultIssuerURL = "https://id.notewell.app"

// DefaultKeyFetchBudget is the maximum number of requests per minute the
// signing-key cache may issue against the key-discovery endpoint.
const DefaultKeyFetchBudget = 5

// Identity is the canonical caller identity produced by either resolution
// strategy. It is request-scoped: produced per request, projected onto a
// durable account record on first note creation, and then discarded.
type Identity struct {
	// Email uniquely identifies the account the caller acts as. Ownership
	// checks compare emails, never names.
	Email string `json:"email"`

	// Name is the caller's display name.
	Name string `json:"name"`

	// Picture is a URL to the caller's avatar image.
	Picture string `json:"picture"`
}

// Metadata is the auxiliary request metadata the local-verification
// strategy derives identity attributes from. Lookups are case-insensitive
// because upstream proxies rewrite header casing inconsistently.
type Metadata map[string]string

// Get returns the value for key using a case-insensitive match, or the
// empty string if no entry matches.
func (m Metadata) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// IdentityResolver resolves a caller identity from a bearer credential.
// Implementations must be safe for concurrent use by multiple goroutines.
//
// The authorization argument is the raw Authorization header value
// ("scheme token"); meta carries the auxiliary identity metadata used by
// the local-verification strategy and is ignored by introspection.
//
// Resolution failures are returned as [*nwerr.Error] values in the AUTH
// category. Introspection failures additionally carry the provider's
// original status and message in the error details under
// "provider_status" and "provider_message".
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string, meta Metadata) (Identity, error)
}

// HTTPClient abstracts the HTTP client used for key-discovery and
// introspection calls, so tests can substitute fakes and deployments can
// tune timeouts and transports.
//
// The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Mode selects the identity-resolution strategy for a deployment.
type Mode string

const (
	// ModeIntrospection forwards bearer credentials to the provider's
	// /userinfo endpoint.
	ModeIntrospection Mode = "introspection"

	// ModeLocal verifies tokens locally against the provider's JWKS.
	ModeLocal Mode = "local"
)

// Valid reports whether the mode is one of the recognized values.
func (m Mode) Valid() bool {
	return m == ModeIntrospection || m == ModeLocal
}

// ResolverConfig holds the configuration shared by both resolution
// strategies. Load it through pkg/config or populate it programmatically;
// zero-valued fields are defaulted by [ResolverConfig.Validate].
type ResolverConfig struct {
	// Mode selects the resolution strategy. Defaults to "local".
	Mode Mode `json:"mode" yaml:"mode" env:"MODE" envDefault:"local"`

	// IssuerURL is the identity provider base URL. It is the expected
	// issuer of locally verified tokens (trailing slash tolerated), the
	// base of the /userinfo introspection endpoint, and the base of the
	// /.well-known/jwks.json key-discovery document.
	IssuerURL string `json:"issuer_url" yaml:"issuer_url" env:"ISSUER_URL" envDefault:"https://id.notewell.app"`

	// Audience is the expected "aud" claim of locally verified tokens.
	// Defaults to "note-app-api".
	Audience string `json:"audience" yaml:"audience" env:"AUDIENCE" envDefault:"note-app-api"`

	// HTTPTimeout bounds every outbound call to the provider. A timeout
	// is a resolution failure; it is never retried within the request.
	// Defaults to 10s.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout" env:"HTTP_TIMEOUT" envDefault:"10s"`

	// KeyFetchBudget is the per-minute request ceiling against the
	// key-discovery endpoint. Defaults to 5.
	KeyFetchBudget int `json:"key_fetch_budget" yaml:"key_fetch_budget" env:"KEY_FETCH_BUDGET" envDefault:"5"`

	// HTTPClient overrides the outbound HTTP client. If nil, an
	// [http.Client] with HTTPTimeout is used.
	HTTPClient HTTPClient `json:"-" yaml:"-"`
}

// Validate checks the configuration and applies defaults for zero-valued
// fields. Returns a *[nwerr.Error] with code [nwerr.CodeValidation] if any
// field is invalid.
func (c *ResolverConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if !c.Mode.Valid() {
		return nwerr.Newf(nwerr.CodeValidation, "auth: mode %q is not recognized (use introspection or local)", c.Mode)
	}
	if c.IssuerURL == "" {
		c.IssuerURL = DefaultIssuerURL
	}
	if !strings.HasPrefix(c.IssuerURL, "http://") && !strings.HasPrefix(c.IssuerURL, "https://") {
		return nwerr.Newf(nwerr.CodeValidation, "auth: issuer URL %q must be absolute", c.IssuerURL)
	}
	if c.Audience == "" {
		c.Audience = DefaultAudience
	}
	if c.HTTPTimeout < 0 {
		return nwerr.New(nwerr.CodeValidation, "auth: HTTP timeout must be non-negative")
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.KeyFetchBudget < 0 {
		return nwerr.New(nwerr.CodeValidation, "auth: key fetch budget must be non-negative")
	}
	if c.KeyFetchBudget == 0 {
		c.KeyFetchBudget = DefaultKeyFetchBudget
	}
	return nil
}

// DefaultResolverConfig returns a ResolverConfig with production defaults:
// local verification against the canonical Notewell issuer.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Mode:           ModeLocal,
		IssuerURL:      DefaultIssuerURL,
		Audience:       DefaultAudience,
		HTTPTimeout:    10 * time.Second,
		KeyFetchBudget: DefaultKeyFetchBudget,
	}
}

// NewResolver builds the [IdentityResolver] selected by cfg.Mode. The
// configuration is validated (and defaulted) before use.
func NewResolver(cfg ResolverConfig) (IdentityResolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	switch cfg.Mode {
	case ModeIntrospection:
		return NewIntrospectionResolver(cfg.IssuerURL, client), nil
	default:
		keys := NewKeyCache(jwksURL(cfg.IssuerURL), client, cfg.KeyFetchBudget)
		return NewLocalResolver(NewTokenValidator(keys, cfg.IssuerURL, cfg.Audience)), nil
	}
}

// jwksURL derives the key-discovery document URL from the issuer base.
func jwksURL(issuerURL string) string {
	return strings.TrimRight(issuerURL, "/") + "/.well-known/jwks.json"
}

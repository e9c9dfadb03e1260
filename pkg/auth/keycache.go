package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// maxJWKSResponseSize caps the key-discovery response body at 1 MiB to
// prevent memory exhaustion from a misbehaving or malicious endpoint.
const maxJWKSResponseSize = 1 << 20

// SigningKey is a verification key from the provider's key set, indexed
// by its key identifier.
type SigningKey struct {
	// KID is the key identifier tokens reference in their header.
	KID string

	// Key is the parsed public key (*rsa.PublicKey or *ecdsa.PublicKey).
	Key any

	// Algorithm is the signing algorithm the key is intended for
	// (e.g. "RS256", "ES256").
	Algorithm string
}

// KeyResolver looks up a signing key by its key identifier. [KeyCache]
// is the production implementation; tests substitute fakes.
type KeyResolver interface {
	GetKey(ctx context.Context, kid string) (SigningKey, error)
}

// KeyCache resolves signing keys against the provider's key-discovery
// endpoint and retains every successfully fetched key for the lifetime
// of the process. Keys rotate rarely and the set is small, so entries
// are never evicted and negative results are never cached: an unknown
// kid is re-fetched on the next request, which lets a token signed with
// a freshly rotated key succeed as soon as the provider publishes it.
//
// Outbound fetches are bounded two ways. A rate limiter caps discovery
// requests per minute so a flood of tokens with bogus kids cannot be
// turned into a flood against the provider, and concurrent misses for
// the same kid coalesce into a single fetch whose result all waiters
// share.
//
// KeyCache is safe for concurrent use by multiple goroutines.
type KeyCache struct {
	jwksURL string
	client  HTTPClient
	limiter *rate.Limiter
	group   singleflight.Group
	tracer  trace.Tracer

	mu   sync.RWMutex
	keys map[string]SigningKey
}

var _ KeyResolver = (*KeyCache)(nil)

// NewKeyCache creates a KeyCache that fetches the key set from jwksURL
// using client, issuing at most fetchBudget discovery requests per
// minute. A fetchBudget of zero or less falls back to
// [DefaultKeyFetchBudget].
func NewKeyCache(jwksURL string, client HTTPClient, fetchBudget int) *KeyCache {
	if fetchBudget <= 0 {
		fetchBudget = DefaultKeyFetchBudget
	}
	return &KeyCache{
		jwksURL: jwksURL,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(fetchBudget)/60, fetchBudget),
		tracer:  otel.Tracer(tracerName),
		keys:    make(map[string]SigningKey),
	}
}

// GetKey returns the signing key for kid. Cached entries are served
// without touching the network. On a miss the full key set is fetched,
// merged into the cache, and the requested kid looked up again.
//
// Error codes:
//   - [nwerr.CodeAuthenticationUnknownKey]: the fetched set does not
//     list kid.
//   - [nwerr.CodeUnavailableKeyBudget]: the per-minute fetch budget is
//     exhausted and no cached entry exists.
//   - [nwerr.CodeUnavailableDependency] / [nwerr.CodeTimeoutDependency]:
//     the discovery endpoint failed or timed out.
//
// A cancelled or failed fetch leaves the cache unchanged; previously
// cached keys stay valid.
func (c *KeyCache) GetKey(ctx context.Context, kid string) (SigningKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	// Coalesce concurrent misses for the same kid into one fetch.
	v, err, _ := c.group.Do(kid, func() (any, error) {
		// A concurrent fetch may have populated the cache while this
		// call waited on the group.
		c.mu.RLock()
		key, ok := c.keys[kid]
		c.mu.RUnlock()
		if ok {
			return key, nil
		}

		if !c.limiter.Allow() {
			return SigningKey{}, nwerr.New(nwerr.CodeUnavailableKeyBudget,
				"auth: key-discovery request budget exhausted")
		}

		fetched, err := c.fetchKeys(ctx)
		if err != nil {
			return SigningKey{}, err
		}

		c.mu.Lock()
		for _, k := range fetched {
			c.keys[k.KID] = k
		}
		key, ok = c.keys[kid]
		c.mu.Unlock()

		if !ok {
			return SigningKey{}, nwerr.Newf(nwerr.CodeAuthenticationUnknownKey,
				"auth: signing key %q is not listed by the provider", kid)
		}
		return key, nil
	})
	if err != nil {
		return SigningKey{}, err
	}
	return v.(SigningKey), nil
}

// Len returns the number of cached keys. Intended for tests and
// diagnostics.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// jwksDocument mirrors the RFC 7517 key-set wire format, limited to the
// members the provider actually publishes.
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`

	// RSA parameters.
	N string `json:"n"`
	E string `json:"e"`

	// EC parameters.
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// fetchKeys retrieves and parses the provider's key-discovery document.
// Keys with unsupported types or malformed parameters are skipped, not
// fatal: one bad entry must not take down verification for the rest of
// the set.
func (c *KeyCache) fetchKeys(ctx context.Context) ([]SigningKey, error) {
	ctx, span := c.tracer.Start(ctx, "auth.KeyCache.fetchKeys",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("jwks.url", c.jwksURL)),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nwerr.Wrap(err, nwerr.CodeInternal,
			"auth: failed to build key-discovery request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nwerr.Wrap(err, nwerr.CodeTimeoutDependency,
				"auth: key-discovery request timed out")
		}
		return nil, nwerr.Wrap(err, nwerr.CodeUnavailableDependency,
			"auth: key-discovery request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return nil, nwerr.Newf(nwerr.CodeUnavailableDependency,
			"auth: key-discovery endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nwerr.Wrap(err, nwerr.CodeUnavailableDependency,
			"auth: failed to read key-discovery response")
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nwerr.Wrap(err, nwerr.CodeUnavailableDependency,
			"auth: failed to parse key-discovery response")
	}

	keys := make([]SigningKey, 0, len(doc.Keys))
	for _, jk := range doc.Keys {
		if jk.Kid == "" {
			continue
		}
		key, alg, err := parseJWK(jk)
		if err != nil {
			continue
		}
		keys = append(keys, SigningKey{KID: jk.Kid, Key: key, Algorithm: alg})
	}

	span.SetAttributes(attribute.Int("jwks.keys", len(keys)))
	return keys, nil
}

// parseJWK converts a single key-set entry into a usable public key and
// its signing algorithm. The algorithm comes from the entry's "alg"
// member when present, otherwise from the key type's conventional
// default.
func parseJWK(jk jwksKey) (any, string, error) {
	switch jk.Kty {
	case "RSA":
		key, err := parseRSAPublicKey(jk.N, jk.E)
		if err != nil {
			return nil, "", err
		}
		alg := jk.Alg
		if alg == "" {
			alg = "RS256"
		}
		return key, alg, nil

	case "EC":
		key, err := parseECPublicKey(jk.Crv, jk.X, jk.Y)
		if err != nil {
			return nil, "", err
		}
		alg := jk.Alg
		if alg == "" {
			alg = "ES256"
		}
		return key, alg, nil

	default:
		return nil, "", fmt.Errorf("unsupported key type %q", jk.Kty)
	}
}

// parseRSAPublicKey builds an *rsa.PublicKey from base64url-encoded
// modulus and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("invalid RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("invalid RSA exponent: %w", err)
	}

	exponent := 0
	for _, b := range eBytes {
		exponent = exponent<<8 | int(b)
	}
	if exponent == 0 {
		return nil, fmt.Errorf("RSA exponent is zero")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: exponent,
	}, nil
}

// parseECPublicKey builds an *ecdsa.PublicKey from a named curve and
// base64url-encoded coordinates.
func parseECPublicKey(crv, x, y string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return nil, fmt.Errorf("invalid EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(y)
	if err != nil {
		return nil, fmt.Errorf("invalid EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// authTestUserinfoServer serves /userinfo with the given handler and
// returns a resolver pointed at it.
func authTestUserinfoServer(t *testing.T, handler http.HandlerFunc) *IntrospectionResolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewIntrospectionResolver(srv.URL, srv.Client())
}

func TestIntrospectionResolver_Success(t *testing.T) {
	var gotPath, gotAuth string
	r := authTestUserinfoServer(t, func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		gotAuth = req.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"ada@example.com","name":"Ada Lovelace","picture":"https://cdn.example.com/ada.png"}`))
	})

	identity, err := r.Resolve(context.Background(), "Bearer token-abc", nil)
	require.NoError(t, err)

	assert.Equal(t, "/userinfo", gotPath)
	assert.Equal(t, "Bearer token-abc", gotAuth)
	assert.Equal(t, Identity{
		Email:   "ada@example.com",
		Name:    "Ada Lovelace",
		Picture: "https://cdn.example.com/ada.png",
	}, identity)
}

func TestIntrospectionResolver_ProviderRejection(t *testing.T) {
	r := authTestUserinfoServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := r.Resolve(context.Background(), "Bearer bad", nil)
	require.Error(t, err)

	e, ok := nwerr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, nwerr.CodeAuthentication, e.Code)
	assert.Equal(t, http.StatusUnauthorized, e.Details[DetailProviderStatus])
	assert.Equal(t, "Unauthorized", e.Details[DetailProviderMessage])
}

func TestIntrospectionResolver_ProviderRateLimit(t *testing.T) {
	r := authTestUserinfoServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := r.Resolve(context.Background(), "Bearer busy", nil)
	require.Error(t, err)

	e, ok := nwerr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, e.Details[DetailProviderStatus])
	assert.Equal(t, "Too Many Requests", e.Details[DetailProviderMessage])
}

func TestIntrospectionResolver_MissingEmail(t *testing.T) {
	r := authTestUserinfoServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"No Email","picture":""}`))
	})

	_, err := r.Resolve(context.Background(), "Bearer token", nil)
	require.Error(t, err)
	assert.Equal(t, nwerr.CodeAuthenticationIncomplete, nwerr.GetCode(err))
}

func TestIntrospectionResolver_EmptyCredential(t *testing.T) {
	r := authTestUserinfoServer(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("provider must not be called without a credential")
	})

	_, err := r.Resolve(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, nwerr.IsAuthentication(err))
}

func TestIntrospectionResolver_MalformedBody(t *testing.T) {
	r := authTestUserinfoServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := r.Resolve(context.Background(), "Bearer token", nil)
	require.Error(t, err)
	assert.Equal(t, nwerr.CodeUnavailableDependency, nwerr.GetCode(err))
}

func TestIntrospectionResolver_ProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on
	r := NewIntrospectionResolver(srv.URL, http.DefaultClient)

	_, err := r.Resolve(context.Background(), "Bearer token", nil)
	require.Error(t, err)
	assert.Equal(t, nwerr.CodeUnavailableDependency, nwerr.GetCode(err))
}

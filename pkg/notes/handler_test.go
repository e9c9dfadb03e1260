package notes

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notewell/notewell-core/internal/testutil/fixtures"
	"github.com/notewell/notewell-core/pkg/auth"
	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// fakeResolver resolves a fixed identity for the "Bearer good" credential
// and fails with a configurable error otherwise.
type fakeResolver struct {
	identity auth.Identity
	err      error
	calls    int
}

func (r *fakeResolver) Resolve(_ context.Context, authorization string, _ auth.Metadata) (auth.Identity, error) {
	r.calls++
	if r.err != nil {
		return auth.Identity{}, r.err
	}
	if authorization != "Bearer good" {
		return auth.Identity{}, nwerr.New(nwerr.CodeAuthenticationInvalid, "auth: credential rejected")
	}
	return r.identity, nil
}

// fakeStore is an in-memory Store recording persistence effects.
type fakeStore struct {
	notes   map[int64]Note
	nextID  int64
	err     error
	gets    int
	creates int
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{notes: map[int64]Note{}, nextID: 1}
}

func (s *fakeStore) put(title string, content *string, ownerEmail string) Note {
	n := Note{
		ID:         s.nextID,
		Title:      title,
		Content:    content,
		OwnerID:    uuid.New(),
		OwnerEmail: ownerEmail,
	}
	s.notes[n.ID] = n
	s.nextID++
	return n
}

func (s *fakeStore) ListByOwner(_ context.Context, ownerEmail string) ([]Note, error) {
	if s.err != nil {
		return nil, s.err
	}
	list := []Note{}
	for _, n := range s.notes {
		if n.OwnerEmail == ownerEmail {
			list = append(list, n)
		}
	}
	return list, nil
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (Note, error) {
	s.gets++
	if s.err != nil {
		return Note{}, s.err
	}
	n, ok := s.notes[id]
	if !ok {
		return Note{}, nwerr.Newf(nwerr.CodeNotFoundNote, "notes: note %d does not exist", id)
	}
	return n, nil
}

func (s *fakeStore) Create(_ context.Context, owner auth.Identity, in CreateInput) (Note, error) {
	if s.err != nil {
		return Note{}, s.err
	}
	s.creates++
	return s.put(in.Title, in.Content, owner.Email), nil
}

func (s *fakeStore) Update(_ context.Context, id int64, in UpdateInput) (Note, error) {
	s.updates++
	n, ok := s.notes[id]
	if !ok {
		return Note{}, nwerr.Newf(nwerr.CodeNotFoundNote, "notes: note %d does not exist", id)
	}
	if in.Title != nil {
		n.Title = *in.Title
	}
	if in.Content != nil {
		n.Content = in.Content
	}
	s.notes[id] = n
	return n, nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) (Note, error) {
	n, ok := s.notes[id]
	if !ok {
		return Note{}, nwerr.Newf(nwerr.CodeNotFoundNote, "notes: note %d does not exist", id)
	}
	delete(s.notes, id)
	return n, nil
}

func (s *fakeStore) Health(context.Context) error {
	return s.err
}

var testIdentity = fixtures.Ada()

func newTestHandlers(opts ...Option) (*Handlers, *fakeStore, *fakeResolver) {
	store := newFakeStore()
	resolver := &fakeResolver{identity: testIdentity}
	return NewHandlers(store, resolver, opts...), store, resolver
}

func authedRequest() Request {
	return Request{Headers: map[string]string{"Authorization": "Bearer good"}}
}

func decodeNote(t *testing.T, resp Response) Note {
	t.Helper()
	var envelope struct {
		Data Note `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &envelope))
	return envelope.Data
}

func TestHandlers_MissingCredential(t *testing.T) {
	h, store, resolver := newTestHandlers()

	ops := map[string]func(context.Context, Request) Response{
		"list":   h.List,
		"get":    h.Get,
		"create": h.Create,
		"update": h.Update,
		"delete": h.Delete,
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			resp := op(context.Background(), Request{
				Headers:        map[string]string{},
				PathParameters: map[string]string{"id": "1"},
				Body:           `{"title":"x"}`,
			})
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.JSONEq(t, `{"msg":"unauthorized"}`, resp.Body)
		})
	}

	// No resolution attempt and no persistence effect took place.
	assert.Zero(t, resolver.calls)
	assert.Zero(t, store.creates)
	assert.Empty(t, store.notes)
}

func TestHandlers_RejectedCredential(t *testing.T) {
	h, store, _ := newTestHandlers()

	resp := h.Create(context.Background(), Request{
		Headers: map[string]string{"Authorization": "Bearer bad"},
		Body:    `{"title":"x"}`,
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, store.creates)
}

func TestHandlers_ProviderVerdictPassedThrough(t *testing.T) {
	h, _, resolver := newTestHandlers()
	resolver.err = nwerr.New(nwerr.CodeAuthentication, "provider said no").
		WithDetail(auth.DetailProviderStatus, http.StatusTooManyRequests).
		WithDetail(auth.DetailProviderMessage, "Too Many Requests")

	resp := h.List(context.Background(), authedRequest())

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.JSONEq(t, `{"msg":"Too Many Requests"}`, resp.Body)
}

func TestHandlers_ResolverFault(t *testing.T) {
	h, _, resolver := newTestHandlers()
	resolver.err = nwerr.New(nwerr.CodeUnavailableDependency, "provider unreachable")

	resp := h.List(context.Background(), authedRequest())

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"msg":"internal server error"}`, resp.Body)
}

func TestHandlers_List(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.put("Mine", nil, testIdentity.Email)
	store.put("Theirs", nil, "other@example.com")

	resp := h.List(context.Background(), authedRequest())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var envelope struct {
		Data []Note `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "Mine", envelope.Data[0].Title)
}

func TestHandlers_List_EmptyIsArrayNotNull(t *testing.T) {
	h, _, _ := newTestHandlers()

	resp := h.List(context.Background(), authedRequest())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[]}`, resp.Body)
}

func TestHandlers_Get(t *testing.T) {
	h, store, _ := newTestHandlers()
	mine := store.put("Mine", ptr("body"), testIdentity.Email)

	req := authedRequest()
	req.PathParameters = map[string]string{"id": "1"}
	resp := h.Get(context.Background(), req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeNote(t, resp)
	assert.Equal(t, mine.ID, got.ID)
	assert.Equal(t, "Mine", got.Title)
}

func TestHandlers_Get_MissingAndForeignIndistinguishable(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.put("Theirs", nil, "other@example.com") // id 1

	missing := authedRequest()
	missing.PathParameters = map[string]string{"id": "999"}
	foreign := authedRequest()
	foreign.PathParameters = map[string]string{"id": "1"}

	missingResp := h.Get(context.Background(), missing)
	foreignResp := h.Get(context.Background(), foreign)

	assert.Equal(t, http.StatusOK, missingResp.StatusCode)
	assert.Equal(t, http.StatusOK, foreignResp.StatusCode)
	assert.JSONEq(t, `{"data":null}`, missingResp.Body)
	assert.Equal(t, missingResp.Body, foreignResp.Body)
}

func TestHandlers_Get_BadID(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := authedRequest()
	req.PathParameters = map[string]string{"id": "abc"}
	resp := h.Get(context.Background(), req)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlers_Create(t *testing.T) {
	h, store, _ := newTestHandlers()

	req := authedRequest()
	req.Body = `{"title":"Groceries","content":"milk"}`
	resp := h.Create(context.Background(), req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeNote(t, resp)
	assert.Equal(t, "Groceries", got.Title)
	require.NotNil(t, got.Content)
	assert.Equal(t, "milk", *got.Content)
	assert.Equal(t, 1, store.creates)
}

func TestHandlers_Create_SanitizesMarkup(t *testing.T) {
	h, store, _ := newTestHandlers()

	req := authedRequest()
	req.Body = `{"title":"<script>alert(1)</script>Groceries","content":"<img src=x onerror=alert(1)>milk"}`
	resp := h.Create(context.Background(), req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	stored := store.notes[1]
	assert.Equal(t, "Groceries", stored.Title)
	require.NotNil(t, stored.Content)
	assert.Equal(t, "milk", *stored.Content)
}

func TestHandlers_Create_ValidationFailures(t *testing.T) {
	h, store, _ := newTestHandlers()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing title", `{"content":"x"}`},
		{"empty title", `{"title":""}`},
		{"oversized title", `{"title":"` + strings.Repeat("a", 256) + `"}`},
		{"title empty after sanitization", `{"title":"<b></b>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest()
			req.Body = tt.body
			resp := h.Create(context.Background(), req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Zero(t, store.creates)
}

func TestHandlers_Update(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.put("Old title", nil, testIdentity.Email)

	req := authedRequest()
	req.PathParameters = map[string]string{"id": "1"}
	req.Body = `{"title":"New title"}`
	resp := h.Update(context.Background(), req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "New title", store.notes[1].Title)
}

func TestHandlers_Update_ValidationFailuresBeforePersistence(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.put("Old title", nil, testIdentity.Email)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"empty title", `{"title":""}`},
		{"oversized title", `{"title":"` + strings.Repeat("a", 256) + `"}`},
		{"title empty after sanitization", `{"title":"<b></b>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest()
			req.PathParameters = map[string]string{"id": "1"}
			req.Body = tt.body
			resp := h.Update(context.Background(), req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	// A rejected payload never reaches the store, not even for a read.
	assert.Zero(t, store.gets)
	assert.Zero(t, store.updates)
	assert.Equal(t, "Old title", store.notes[1].Title)
}

func TestHandlers_Update_EmptyPayloadWritesNothing(t *testing.T) {
	h, store, _ := newTestHandlers()
	mine := store.put("Old title", nil, testIdentity.Email)

	req := authedRequest()
	req.PathParameters = map[string]string{"id": "1"}
	req.Body = `{}`
	resp := h.Update(context.Background(), req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeNote(t, resp)
	assert.Equal(t, mine.ID, got.ID)
	assert.Equal(t, "Old title", got.Title)
	assert.Zero(t, store.updates)
}

func TestHandlers_Update_MissingAndForeignIndistinguishable(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.put("Theirs", nil, "other@example.com") // id 1

	missing := authedRequest()
	missing.PathParameters = map[string]string{"id": "999"}
	missing.Body = `{"title":"x"}`
	foreign := authedRequest()
	foreign.PathParameters = map[string]string{"id": "1"}
	foreign.Body = `{"title":"x"}`

	missingResp := h.Update(context.Background(), missing)
	foreignResp := h.Update(context.Background(), foreign)

	assert.Equal(t, http.StatusBadRequest, missingResp.StatusCode)
	assert.Equal(t, missingResp.Body, foreignResp.Body)
	assert.Equal(t, "Theirs", store.notes[1].Title, "foreign note must be untouched")
}

func TestHandlers_Delete(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.put("Mine", nil, testIdentity.Email)

	req := authedRequest()
	req.PathParameters = map[string]string{"id": "1"}
	resp := h.Delete(context.Background(), req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeNote(t, resp)
	assert.Equal(t, "Mine", got.Title)
	assert.Empty(t, store.notes)
}

func TestHandlers_Delete_MissingAndForeignIndistinguishable(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.put("Theirs", nil, "other@example.com") // id 1

	missing := authedRequest()
	missing.PathParameters = map[string]string{"id": "999"}
	foreign := authedRequest()
	foreign.PathParameters = map[string]string{"id": "1"}

	missingResp := h.Delete(context.Background(), missing)
	foreignResp := h.Delete(context.Background(), foreign)

	assert.Equal(t, http.StatusBadRequest, missingResp.StatusCode)
	assert.Equal(t, missingResp.Body, foreignResp.Body)
	assert.Len(t, store.notes, 1, "foreign note must not be deleted")
}

func TestHandlers_StoreFault(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.err = nwerr.New(nwerr.CodeInternalDatabase, "pool exhausted")

	resp := h.List(context.Background(), authedRequest())

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"msg":"internal server error"}`, resp.Body)
	assert.NotContains(t, resp.Body, "pool exhausted")
}

func TestHandlers_CORSHeaders(t *testing.T) {
	h, _, _ := newTestHandlers(WithCORS())

	resp := h.List(context.Background(), authedRequest())
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "true", resp.Headers["Access-Control-Allow-Credentials"])

	// Unauthenticated responses carry them too.
	resp = h.List(context.Background(), Request{})
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHandlers_NoCORSByDefault(t *testing.T) {
	h, _, _ := newTestHandlers()

	resp := h.List(context.Background(), authedRequest())
	assert.NotContains(t, resp.Headers, "Access-Control-Allow-Origin")
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandlers_AuthorizationHeaderCaseInsensitive(t *testing.T) {
	h, _, _ := newTestHandlers()

	resp := h.List(context.Background(), Request{
		Headers: map[string]string{"authorization": "Bearer good"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlers_Health(t *testing.T) {
	h, store, _ := newTestHandlers()

	resp := h.Health(context.Background(), Request{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":{"status":"ok"}}`, resp.Body)

	store.err = nwerr.New(nwerr.CodeUnavailableDependency, "db down")
	resp = h.Health(context.Background(), Request{})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

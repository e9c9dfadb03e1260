package notes

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/notewell/notewell-core/pkg/auth"
	nwerr "github.com/notewell/notewell-core/pkg/errors"
	"github.com/notewell/notewell-core/pkg/sanitize"
)

// Request is the transport-neutral shape of an incoming API event.
// Header lookups are case-insensitive via [auth.Metadata].
type Request struct {
	// Headers carries the request headers, including the Authorization
	// credential and the identity metadata headers.
	Headers map[string]string `json:"headers"`

	// PathParameters carries the route parameters; note operations use
	// the "id" parameter.
	PathParameters map[string]string `json:"pathParameters"`

	// Body is the raw request body.
	Body string `json:"body"`
}

// Response is the transport-neutral shape of an API result.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Messages returned to callers. Mutation failures deliberately use the
// same wording for a missing note and a foreign note, so neither
// confirms the other.
const (
	msgUnauthorized   = "unauthorized"
	msgInvalidNoteID  = "note id must be an integer"
	msgCannotUpdate   = "could not update note"
	msgCannotDelete   = "could not delete note"
	msgInternalError  = "internal server error"
	msgBadCredential  = "could not verify credential"
)

// Handlers bundles the five note operations behind shared identity
// resolution, validation, sanitization, and error handling. Create one
// with [NewHandlers] and route transport events to its methods.
//
// Handlers is safe for concurrent use.
type Handlers struct {
	store     Store
	resolver  auth.IdentityResolver
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
	tracer    trace.Tracer
	cors      bool
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets the structured logger handlers report faults through.
// Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) { h.logger = logger }
}

// WithCORS adds permissive cross-origin headers to every response.
// Enabled for local-verification deployments where the browser client
// talks to the API directly.
func WithCORS() Option {
	return func(h *Handlers) { h.cors = true }
}

// NewHandlers creates the note operation handlers on top of store,
// resolving caller identity through resolver.
func NewHandlers(store Store, resolver auth.IdentityResolver, opts ...Option) *Handlers {
	h := &Handlers{
		store:     store,
		resolver:  resolver,
		sanitizer: sanitize.New(),
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// List returns every note owned by the caller, newest first.
func (h *Handlers) List(ctx context.Context, req Request) Response {
	ctx, span := h.tracer.Start(ctx, "notes.Handlers.List")
	defer span.End()

	identity, errResp := h.authenticate(ctx, req)
	if errResp != nil {
		return *errResp
	}
	ctx = auth.ContextWithIdentity(ctx, identity)

	list, err := h.store.ListByOwner(ctx, identity.Email)
	if err != nil {
		return h.internal(ctx, "list", err)
	}

	span.SetAttributes(attribute.Int("notes.count", len(list)))
	return h.data(http.StatusOK, list)
}

// Get returns a single note by id. A missing note and a note owned by
// someone else both produce a successful null result.
func (h *Handlers) Get(ctx context.Context, req Request) Response {
	ctx, span := h.tracer.Start(ctx, "notes.Handlers.Get")
	defer span.End()

	identity, errResp := h.authenticate(ctx, req)
	if errResp != nil {
		return *errResp
	}
	ctx = auth.ContextWithIdentity(ctx, identity)

	id, ok := noteID(req)
	if !ok {
		return h.msg(http.StatusBadRequest, msgInvalidNoteID)
	}

	note, err := h.store.GetByID(ctx, id)
	if err != nil {
		if nwerr.IsNotFound(err) {
			return h.data(http.StatusOK, nil)
		}
		return h.internal(ctx, "get", err)
	}
	if !OwnedBy(note, identity) {
		return h.data(http.StatusOK, nil)
	}

	return h.data(http.StatusOK, note)
}

// Create stores a new note for the caller, creating the caller's
// account on first contact.
func (h *Handlers) Create(ctx context.Context, req Request) Response {
	ctx, span := h.tracer.Start(ctx, "notes.Handlers.Create")
	defer span.End()

	identity, errResp := h.authenticate(ctx, req)
	if errResp != nil {
		return *errResp
	}
	ctx = auth.ContextWithIdentity(ctx, identity)

	in, err := ParseCreateInput(req.Body)
	if err != nil {
		return h.validationFailure(err)
	}

	in.Title = h.sanitizer.Clean(in.Title)
	in.Content = h.sanitizer.CleanPtr(in.Content)

	// Stripping markup can empty a title that passed the length check.
	if err := validateTitle(in.Title); err != nil {
		return h.validationFailure(err)
	}

	note, err := h.store.Create(ctx, identity, in)
	if err != nil {
		return h.internal(ctx, "create", err)
	}

	span.SetAttributes(attribute.Int64("note.id", note.ID))
	return h.data(http.StatusOK, note)
}

// Update applies a partial update to a note the caller owns. A missing
// note and a foreign note fail identically.
func (h *Handlers) Update(ctx context.Context, req Request) Response {
	ctx, span := h.tracer.Start(ctx, "notes.Handlers.Update")
	defer span.End()

	identity, errResp := h.authenticate(ctx, req)
	if errResp != nil {
		return *errResp
	}
	ctx = auth.ContextWithIdentity(ctx, identity)

	id, ok := noteID(req)
	if !ok {
		return h.msg(http.StatusBadRequest, msgInvalidNoteID)
	}

	// Payload shape and schema are rejected before any persistence read.
	in, err := ParseUpdateInput(req.Body)
	if err != nil {
		return h.validationFailure(err)
	}

	in.Title = h.sanitizer.CleanPtr(in.Title)
	in.Content = h.sanitizer.CleanPtr(in.Content)
	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return h.validationFailure(err)
		}
	}

	current, err := h.store.GetByID(ctx, id)
	if err != nil {
		if nwerr.IsNotFound(err) {
			return h.msg(http.StatusBadRequest, msgCannotUpdate)
		}
		return h.internal(ctx, "update", err)
	}
	if !OwnedBy(current, identity) {
		return h.msg(http.StatusBadRequest, msgCannotUpdate)
	}

	// An update naming no fields has nothing to write.
	if in.Empty() {
		return h.data(http.StatusOK, current)
	}

	note, err := h.store.Update(ctx, id, in)
	if err != nil {
		if nwerr.IsNotFound(err) {
			// Deleted between the ownership check and the update.
			return h.msg(http.StatusBadRequest, msgCannotUpdate)
		}
		return h.internal(ctx, "update", err)
	}

	note.OwnerEmail = current.OwnerEmail
	return h.data(http.StatusOK, note)
}

// Delete removes a note the caller owns and returns the deleted note.
// A missing note and a foreign note fail identically.
func (h *Handlers) Delete(ctx context.Context, req Request) Response {
	ctx, span := h.tracer.Start(ctx, "notes.Handlers.Delete")
	defer span.End()

	identity, errResp := h.authenticate(ctx, req)
	if errResp != nil {
		return *errResp
	}
	ctx = auth.ContextWithIdentity(ctx, identity)

	id, ok := noteID(req)
	if !ok {
		return h.msg(http.StatusBadRequest, msgInvalidNoteID)
	}

	current, err := h.store.GetByID(ctx, id)
	if err != nil {
		if nwerr.IsNotFound(err) {
			return h.msg(http.StatusBadRequest, msgCannotDelete)
		}
		return h.internal(ctx, "delete", err)
	}
	if !OwnedBy(current, identity) {
		return h.msg(http.StatusBadRequest, msgCannotDelete)
	}

	note, err := h.store.Delete(ctx, id)
	if err != nil {
		if nwerr.IsNotFound(err) {
			return h.msg(http.StatusBadRequest, msgCannotDelete)
		}
		return h.internal(ctx, "delete", err)
	}

	note.OwnerEmail = current.OwnerEmail
	return h.data(http.StatusOK, note)
}

// Health reports whether the API's dependencies are reachable. Unlike
// the note operations it requires no credential.
func (h *Handlers) Health(ctx context.Context, _ Request) Response {
	if err := h.store.Health(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed",
			slog.String("error", err.Error()),
		)
		return h.msg(http.StatusServiceUnavailable, "unhealthy")
	}
	return h.data(http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate runs the shared front half of every note operation: the
// credential must be present (checked before anything else, and before
// any persistence effect), then resolved to an identity. On failure it
// returns the response to send.
func (h *Handlers) authenticate(ctx context.Context, req Request) (auth.Identity, *Response) {
	meta := auth.Metadata(req.Headers)

	authorization := meta.Get("Authorization")
	if authorization == "" {
		resp := h.msg(http.StatusUnauthorized, msgUnauthorized)
		return auth.Identity{}, &resp
	}

	identity, err := h.resolver.Resolve(ctx, authorization, meta)
	if err != nil {
		if e, ok := nwerr.AsError(err); ok {
			// Introspection rejections pass the provider's verdict
			// through to the caller.
			if status, ok := e.Details[auth.DetailProviderStatus].(int); ok {
				message, _ := e.Details[auth.DetailProviderMessage].(string)
				resp := h.msg(status, message)
				return auth.Identity{}, &resp
			}
			if nwerr.IsAuthentication(e) {
				resp := h.msg(http.StatusBadRequest, msgBadCredential)
				return auth.Identity{}, &resp
			}
		}
		resp := h.internal(ctx, "authenticate", err)
		return auth.Identity{}, &resp
	}

	return identity, nil
}

// internal logs an unexpected fault with trace correlation and returns
// the generic server error. Internal detail never reaches the caller.
func (h *Handlers) internal(ctx context.Context, op string, err error) Response {
	h.logger.ErrorContext(ctx, "note operation failed",
		slog.String("operation", op),
		slog.String("code", string(nwerr.GetCode(err))),
		slog.String("error", err.Error()),
		slog.String("trace_id", auth.TraceIDFromContext(ctx)),
		slog.String("span_id", auth.SpanIDFromContext(ctx)),
	)
	return h.msg(http.StatusInternalServerError, msgInternalError)
}

// validationFailure turns a validation error into the client response,
// exposing the validation message but nothing else.
func (h *Handlers) validationFailure(err error) Response {
	if e, ok := nwerr.AsError(err); ok && nwerr.IsValidation(e) {
		return h.msg(http.StatusBadRequest, e.Message)
	}
	return h.msg(http.StatusBadRequest, "invalid request")
}

// data builds a success envelope: {"data": <payload>}.
func (h *Handlers) data(status int, payload any) Response {
	body, err := json.Marshal(map[string]any{"data": payload})
	if err != nil {
		return h.msg(http.StatusInternalServerError, msgInternalError)
	}
	return Response{
		StatusCode: status,
		Headers:    h.headers(),
		Body:       string(body),
	}
}

// msg builds a message envelope: {"msg": <message>}.
func (h *Handlers) msg(status int, message string) Response {
	body, _ := json.Marshal(map[string]string{"msg": message})
	return Response{
		StatusCode: status,
		Headers:    h.headers(),
		Body:       string(body),
	}
}

func (h *Handlers) headers() map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if h.cors {
		headers["Access-Control-Allow-Origin"] = "*"
		headers["Access-Control-Allow-Credentials"] = "true"
	}
	return headers
}

// noteID parses the "id" path parameter.
func noteID(req Request) (int64, bool) {
	raw, ok := req.PathParameters["id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

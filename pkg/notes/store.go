package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/notewell/notewell-core/pkg/auth"
	"github.com/notewell/notewell-core/pkg/clients/postgres"
	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/notewell/notewell-core/pkg/notes"

// Store is the persistence boundary for accounts and notes. The handlers
// depend on this interface; [PostgresStore] is the production
// implementation and tests substitute fakes.
type Store interface {
	// ListByOwner returns all notes owned by the account with the given
	// email, newest first. An email with no account yields an empty list.
	ListByOwner(ctx context.Context, ownerEmail string) ([]Note, error)

	// GetByID returns the note with the given id, including its owner's
	// email for ownership checks. A missing note fails with
	// [nwerr.CodeNotFoundNote].
	GetByID(ctx context.Context, id int64) (Note, error)

	// Create inserts a note owned by the caller, creating the account
	// row first if this is the caller's first note. The account upsert
	// and the note insert are a single atomic statement.
	Create(ctx context.Context, owner auth.Identity, in CreateInput) (Note, error)

	// Update applies the non-nil fields of in to the note with the given
	// id and returns the updated row. A missing note fails with
	// [nwerr.CodeNotFoundNote]. Ownership is the caller's concern; check
	// it before calling Update.
	Update(ctx context.Context, id int64, in UpdateInput) (Note, error)

	// Delete removes the note with the given id and returns the deleted
	// row. A missing note fails with [nwerr.CodeNotFoundNote].
	Delete(ctx context.Context, id int64) (Note, error)

	// Health reports whether the backing database is reachable.
	Health(ctx context.Context) error
}

// PostgresStore implements [Store] on top of the shared postgres client.
// It is safe for concurrent use.
type PostgresStore struct {
	db     *postgres.Client
	tracer trace.Tracer
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by db.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer(tracerName),
	}
}

// EnsureSchema applies the idempotent DDL for the accounts and notes
// tables. Call once at startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return nwerr.Wrap(err, nwerr.CodeInternalDatabase,
			"notes: failed to apply schema")
	}
	return nil
}

const noteColumns = "n.id, n.title, n.content, n.owner_id, a.email, n.created_at, n.updated_at"

const listByOwnerSQL = `SELECT ` + noteColumns + `
FROM notes n
JOIN accounts a ON a.id = n.owner_id
WHERE a.email = $1
ORDER BY n.created_at DESC, n.id DESC`

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerEmail string) ([]Note, error) {
	ctx, span := s.tracer.Start(ctx, "notes.Store.ListByOwner")
	defer span.End()

	rows, err := s.db.Query(ctx, listByOwnerSQL, ownerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.OwnerID, &n.OwnerEmail, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, nwerr.Wrap(err, nwerr.CodeInternalDatabase,
				"notes: failed to scan note row")
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nwerr.Wrap(err, nwerr.CodeInternalDatabase,
			"notes: failed to iterate note rows")
	}

	span.SetAttributes(attribute.Int("notes.count", len(notes)))
	return notes, nil
}

const getByIDSQL = `SELECT ` + noteColumns + `
FROM notes n
JOIN accounts a ON a.id = n.owner_id
WHERE n.id = $1`

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (Note, error) {
	ctx, span := s.tracer.Start(ctx, "notes.Store.GetByID",
		trace.WithAttributes(attribute.Int64("note.id", id)),
	)
	defer span.End()

	var n Note
	err := s.db.QueryRow(ctx, getByIDSQL, id).
		Scan(&n.ID, &n.Title, &n.Content, &n.OwnerID, &n.OwnerEmail, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Note{}, nwerr.Newf(nwerr.CodeNotFoundNote,
				"notes: note %d does not exist", id)
		}
		return Note{}, nwerr.Wrap(err, nwerr.CodeInternalDatabase,
			"notes: failed to load note")
	}
	return n, nil
}

// createSQL upserts the owner's account row and inserts the note in one
// statement, so a lost race on first-note creation cannot leave a note
// without an account or an account without its note. The conflict arm
// writes the email back to itself solely so RETURNING produces a row for
// existing accounts; name and picture are captured on first contact and
// not refreshed.
const createSQL = `WITH owner AS (
    INSERT INTO accounts (id, email, name, picture)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
    RETURNING id
)
INSERT INTO notes (title, content, owner_id)
SELECT $5, $6, owner.id FROM owner
RETURNING id, title, content, owner_id, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, owner auth.Identity, in CreateInput) (Note, error) {
	ctx, span := s.tracer.Start(ctx, "notes.Store.Create")
	defer span.End()

	var n Note
	err := s.db.QueryRow(ctx, createSQL,
		uuid.New(), owner.Email, owner.Name, owner.Picture,
		in.Title, in.Content,
	).Scan(&n.ID, &n.Title, &n.Content, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return Note{}, nwerr.Wrap(err, nwerr.CodeInternalDatabase,
			"notes: failed to create note")
	}

	n.OwnerEmail = owner.Email
	span.SetAttributes(attribute.Int64("note.id", n.ID))
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, in UpdateInput) (Note, error) {
	ctx, span := s.tracer.Start(ctx, "notes.Store.Update",
		trace.WithAttributes(attribute.Int64("note.id", id)),
	)
	defer span.End()

	// Build the SET clause from the fields the payload actually named.
	sets := []string{"updated_at = now()"}
	args := []any{id}
	if in.Title != nil {
		args = append(args, *in.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if in.Content != nil {
		args = append(args, *in.Content)
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)))
	}

	sql := fmt.Sprintf(`UPDATE notes SET %s WHERE id = $1
RETURNING id, title, content, owner_id, created_at, updated_at`, strings.Join(sets, ", "))

	var n Note
	err := s.db.QueryRow(ctx, sql, args...).
		Scan(&n.ID, &n.Title, &n.Content, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Note{}, nwerr.Newf(nwerr.CodeNotFoundNote,
				"notes: note %d does not exist", id)
		}
		return Note{}, nwerr.Wrap(err, nwerr.CodeInternalDatabase,
			"notes: failed to update note")
	}
	return n, nil
}

const deleteSQL = `DELETE FROM notes WHERE id = $1
RETURNING id, title, content, owner_id, created_at, updated_at`

func (s *PostgresStore) Delete(ctx context.Context, id int64) (Note, error) {
	ctx, span := s.tracer.Start(ctx, "notes.Store.Delete",
		trace.WithAttributes(attribute.Int64("note.id", id)),
	)
	defer span.End()

	var n Note
	err := s.db.QueryRow(ctx, deleteSQL, id).
		Scan(&n.ID, &n.Title, &n.Content, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Note{}, nwerr.Newf(nwerr.CodeNotFoundNote,
				"notes: note %d does not exist", id)
		}
		return Note{}, nwerr.Wrap(err, nwerr.CodeInternalDatabase,
			"notes: failed to delete note")
	}
	return n, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

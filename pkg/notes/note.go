// Package notes implements the Notewell note API: multi-tenant note
// storage keyed to account ownership, with event-shaped handlers that
// establish caller identity, validate and sanitize input, and enforce
// that callers only ever see or touch their own notes.
//
// The package is transport-agnostic. Handlers consume a [Request] and
// produce a [Response]; adapting those to net/http, a gateway event, or
// a test harness is the embedder's concern (see examples/server).
package notes

import (
	"time"

	"github.com/google/uuid"
)

// Account is the durable record a caller identity is projected onto.
// Accounts are created lazily: the first note a caller creates upserts
// the account row keyed by email. Name and picture are captured at that
// moment and not refreshed afterwards.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a single note owned by exactly one account. Content is a
// pointer because a note may deliberately have no body, which is
// distinct from an empty one.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   *string   `json:"content"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// OwnerEmail is the owning account's email, joined in by the store
	// for ownership checks. It is never serialized to callers.
	OwnerEmail string `json:"-"`
}

// Schema is the DDL for the accounts and notes tables. It is idempotent
// and applied at startup by [PostgresStore.EnsureSchema].
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id         uuid PRIMARY KEY,
    email      text NOT NULL UNIQUE,
    name       text NOT NULL DEFAULT '',
    picture    text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notes (
    id         bigserial PRIMARY KEY,
    title      text NOT NULL,
    content    text,
    owner_id   uuid NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS notes_owner_id_idx ON notes (owner_id);
`

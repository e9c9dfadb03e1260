//go:build integration

package notes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/notewell/notewell-core/internal/testutil/fixtures"
	"github.com/notewell/notewell-core/pkg/clients/postgres"
	nwerr "github.com/notewell/notewell-core/pkg/errors"
)

// newIntegrationStore spins up a real PostgreSQL container and applies
// the schema. Run with:
//
//	go test -tags integration ./pkg/notes/
func newIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "docker.io/postgres:16-alpine",
		tcpostgres.WithDatabase("notewell"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := postgres.NewClient(ctx, postgres.Config{URI: uri})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	store := NewPostgresStore(client)
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestIntegration_NoteLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newIntegrationStore(t)

	ada := fixtures.Ada()
	grace := fixtures.Grace()

	// First create projects the identity onto a fresh account.
	first, err := store.Create(ctx, ada, CreateInput{Title: "Groceries", Content: ptr("milk")})
	require.NoError(t, err)
	assert.Positive(t, first.ID)

	// Second create by the same identity reuses the account.
	second, err := store.Create(ctx, ada, CreateInput{Title: "Travel plans"})
	require.NoError(t, err)
	assert.Equal(t, first.OwnerID, second.OwnerID, "one account per email")
	assert.Nil(t, second.Content)

	// A different identity gets its own account.
	other, err := store.Create(ctx, grace, CreateInput{Title: "Compilers"})
	require.NoError(t, err)
	assert.NotEqual(t, first.OwnerID, other.OwnerID)

	// Listing filters by owner, newest first.
	list, err := store.ListByOwner(ctx, ada.Email)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	empty, err := store.ListByOwner(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Reads carry the owner email for ownership checks.
	got, err := store.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, ada.Email, got.OwnerEmail)
	assert.True(t, OwnedBy(got, ada))
	assert.False(t, OwnedBy(got, grace))

	// Partial update touches only the named field.
	updated, err := store.Update(ctx, first.ID, UpdateInput{Content: ptr("milk, eggs")})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", updated.Title)
	assert.Equal(t, "milk, eggs", *updated.Content)
	assert.True(t, updated.UpdatedAt.After(first.UpdatedAt) || updated.UpdatedAt.Equal(first.UpdatedAt))

	// Delete returns the removed row; a second delete misses.
	deleted, err := store.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, deleted.ID)

	_, err = store.Delete(ctx, first.ID)
	require.Error(t, err)
	assert.Equal(t, nwerr.CodeNotFoundNote, nwerr.GetCode(err))

	_, err = store.GetByID(ctx, first.ID)
	require.Error(t, err)
	assert.True(t, nwerr.IsNotFound(err))

	require.NoError(t, store.Health(ctx))
}

func TestIntegration_SchemaIsIdempotent(t *testing.T) {
	store := newIntegrationStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
}

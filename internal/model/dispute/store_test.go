package dispute_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
)

func newTestSession(id string) *dispute.Session {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return dispute.NewSession(id, "Rent split", "Who pays the heating bill", dispute.Participant{UserID: "alice", DisplayName: "Alice"}, now)
}

func TestMemoryStoreCreateAndLoad(t *testing.T) {
	store := dispute.NewMemoryStore()
	ctx := context.Background()

	session := newTestSession("s1")
	require.NoError(t, store.Create(ctx, session))
	assert.Equal(t, int64(1), session.Version)

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Rent split", got.Title)
	assert.Equal(t, dispute.StatusActive, got.Status)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, dispute.ParticipantActive, got.Participants[0].Status)
}

func TestMemoryStoreCreateDuplicate(t *testing.T) {
	store := dispute.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("s1")))
	assert.ErrorIs(t, store.Create(ctx, newTestSession("s1")), dispute.ErrAlreadyExists)
}

func TestMemoryStoreLoadNotFound(t *testing.T) {
	store := dispute.NewMemoryStore()

	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, dispute.ErrNotFound)
}

func TestMemoryStoreSaveDetectsStaleVersion(t *testing.T) {
	store := dispute.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestSession("s1")))

	first, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	second, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	first.Title = "first writer"
	require.NoError(t, store.Save(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Title = "second writer"
	assert.ErrorIs(t, store.Save(ctx, second), dispute.ErrConflict)

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "first writer", got.Title)
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	store := dispute.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestSession("s1")))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	got.Participants[0].HasAgreed = true

	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, again.Participants[0].HasAgreed)
}

func TestMemoryStoreListLimit(t *testing.T) {
	store := dispute.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Create(ctx, newTestSession(id)))
	}

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

package repositories_test

import (
	"context"
	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/deepresearch/internal/repositories"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/myrjola/deepresearch/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func newStore() *research.Store {
	return research.NewStore(testhelpers.NewLogger(io.Discard), research.DefaultStoreConfig())
}

func TestSessionRepository_PersistAndRestore(t *testing.T) {
	repo := repositories.NewSessionRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	store := newStore()
	ctx := context.Background()

	session, err := store.Create("topic X", research.ModeQuick)
	require.NoError(t, err)
	snapshot := repo.Snapshot(session.ID())
	require.NoError(t, store.Persist(ctx, session, snapshot))

	session, err = store.Advance(ctx, session, research.PhaseOutput{Fields: map[string]any{"in_scope": []any{"a"}}})
	require.NoError(t, err)
	require.NoError(t, store.Persist(ctx, session, snapshot))

	restored, err := store.Restore(ctx, snapshot)
	require.NoError(t, err)
	if diff := cmp.Diff(session, restored); diff != "" {
		t.Fatalf("restored session mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, research.PhaseRetrieve, restored.Phase)
}

func TestSessionRepository_LoadMissing(t *testing.T) {
	repo := repositories.NewSessionRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	_, err := repo.Snapshot("nonexistent").Load(context.Background())
	require.ErrorIs(t, err, repositories.ErrSessionNotFound)
}

func TestSessionRepository_RejectsForeignSnapshot(t *testing.T) {
	repo := repositories.NewSessionRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	store := newStore()
	session, err := store.Create("topic", research.ModeStandard)
	require.NoError(t, err)
	data, err := research.Encode(session)
	require.NoError(t, err)

	require.Error(t, repo.Snapshot("other-id").Replace(context.Background(), data))
	require.Error(t, repo.Snapshot(session.ID()).Replace(context.Background(), []byte("not json")))
}

func TestSessionRepository_ListAndDelete(t *testing.T) {
	repo := repositories.NewSessionRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	store := newStore()
	ctx := context.Background()

	tests := []struct {
		query string
		mode  research.Mode
	}{
		{query: "first", mode: research.ModeQuick},
		{query: "second", mode: research.ModeDeep},
	}
	ids := make([]string, 0, len(tests))
	for _, tt := range tests {
		session, err := store.Create(tt.query, tt.mode)
		require.NoError(t, err)
		require.NoError(t, store.Persist(ctx, session, repo.Snapshot(session.ID())))
		ids = append(ids, session.ID())
	}

	summaries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, ids[1], summaries[0].ID, "most recently updated first")
	require.Equal(t, "second", summaries[0].Query)
	require.Equal(t, "deep", summaries[0].Mode)
	require.Equal(t, "scope", summaries[0].Phase)
	require.False(t, summaries[0].Closed)
	require.False(t, summaries[0].UpdatedAt.IsZero())

	require.NoError(t, repo.Delete(ctx, ids[0]))
	require.NoError(t, repo.Delete(ctx, ids[0]))
	summaries, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

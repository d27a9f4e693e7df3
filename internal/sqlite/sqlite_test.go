package sqlite_test

import (
	"context"
	"github.com/myrjola/deepresearch/internal/sqlite"
	"github.com/myrjola/deepresearch/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"path/filepath"
	"testing"
)

func TestNewDatabase(t *testing.T) {
	tests := []struct {
		name string
		url  func(t *testing.T) string
	}{
		{name: "in memory", url: func(_ *testing.T) string { return ":memory:" }},
		{name: "file", url: func(t *testing.T) string { return filepath.Join(t.TempDir(), "research.sqlite") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			logger := testhelpers.NewLogger(io.Discard)
			db, err := sqlite.NewDatabase(ctx, tt.url(t), logger)
			require.NoError(t, err)
			t.Cleanup(func() { require.NoError(t, db.Close(ctx)) })

			var version int
			require.NoError(t, db.ReadOnly.GetContext(ctx, &version, "PRAGMA user_version"))
			require.Equal(t, 1, version)

			_, err = db.ReadWrite.ExecContext(ctx,
				`INSERT INTO research_sessions (id, query, mode, phase, snapshot) VALUES ('a', 'q', 'quick', 'scope', '{}')`)
			require.NoError(t, err)

			var count int
			require.NoError(t, db.ReadOnly.GetContext(ctx, &count, "SELECT COUNT(*) FROM research_sessions"))
			require.Equal(t, 1, count)

			_, err = db.ReadOnly.ExecContext(ctx, "DELETE FROM research_sessions")
			require.Error(t, err, "read-only connection must reject writes")
		})
	}
}

func TestNewDatabaseReopensExistingFile(t *testing.T) {
	ctx := context.Background()
	logger := testhelpers.NewLogger(io.Discard)
	path := filepath.Join(t.TempDir(), "research.sqlite")

	db, err := sqlite.NewDatabase(ctx, path, logger)
	require.NoError(t, err)
	_, err = db.ReadWrite.ExecContext(ctx,
		`INSERT INTO research_sessions (id, query, mode, phase, snapshot) VALUES ('a', 'q', 'quick', 'scope', '{}')`)
	require.NoError(t, err)
	require.NoError(t, db.Close(ctx))

	db, err = sqlite.NewDatabase(ctx, path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close(ctx)) })

	var count int
	require.NoError(t, db.ReadOnly.GetContext(ctx, &count, "SELECT COUNT(*) FROM research_sessions"))
	require.Equal(t, 1, count)
}

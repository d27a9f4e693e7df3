package repositories_test

import (
	"context"
	"github.com/myrjola/deepresearch/internal/sqlite"
	"github.com/myrjola/deepresearch/internal/testhelpers"
	"io"
	"testing"
)

// newTestDB creates a new in-memory database for testing purposes.
func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()
	var (
		dbs *sqlite.Database
		err error
		ctx = context.Background()
	)

	if dbs, err = sqlite.NewDatabase(ctx, ":memory:", testhelpers.NewLogger(io.Discard)); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err = dbs.Close(ctx); err != nil {
			t.Fatal(err)
		}
	})

	return dbs
}

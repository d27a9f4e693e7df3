package research_test

import (
	"context"
	"fmt"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/myrjola/deepresearch/internal/testhelpers"
	"io"
	"testing"
	"time"
)

var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type recordingSleeper struct {
	pauses []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.pauses = append(r.pauses, d)
	return nil
}

func newTestStore(t *testing.T) (*research.Store, *recordingSleeper) {
	t.Helper()
	sleeper := &recordingSleeper{}
	ids := 0
	store := research.NewStore(testhelpers.NewLogger(io.Discard), research.StoreConfig{
		MaxAttempts: 3,
		BackoffStep: 500 * time.Millisecond,
		Now:         func() time.Time { return testNow },
		Sleep:       sleeper.Sleep,
		NewID: func() string {
			ids++
			return fmt.Sprintf("session-%d", ids)
		},
	})
	return store, sleeper
}

// flakyDestination fails the first failures calls to Replace.
type flakyDestination struct {
	failures int
	calls    int
	snapshot []byte
}

func (d *flakyDestination) Replace(_ context.Context, snapshot []byte) error {
	d.calls++
	if d.calls <= d.failures {
		return fmt.Errorf("disk full (call %d)", d.calls)
	}
	d.snapshot = append([]byte(nil), snapshot...)
	return nil
}

func (d *flakyDestination) Load(_ context.Context) ([]byte, error) {
	return d.snapshot, nil
}

type bytesOrigin []byte

func (b bytesOrigin) Load(_ context.Context) ([]byte, error) {
	return b, nil
}

func mustCreate(t *testing.T, store *research.Store, query string, mode research.Mode) *research.Session {
	t.Helper()
	s, err := store.Create(query, mode)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

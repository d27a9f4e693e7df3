package research

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/logging"
	"log/slog"
	"strings"
	"time"
)

// Destination is a durable sink for one session snapshot.
//
// Replace must be atomic: after a failed or interrupted call a reader sees either the previous snapshot or the new
// one, never a partial write.
type Destination interface {
	Replace(ctx context.Context, snapshot []byte) error
}

// Origin reads back a snapshot written to a Destination.
type Origin interface {
	Load(ctx context.Context) ([]byte, error)
}

// StoreConfig tunes a Store. Zero values are replaced with the defaults from DefaultStoreConfig.
type StoreConfig struct {
	// MaxAttempts is the number of Replace calls Persist makes before giving up.
	MaxAttempts int
	// BackoffStep is multiplied by the attempt number to get the pause before the next attempt.
	BackoffStep time.Duration
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
	NewID       func() string
}

// DefaultStoreConfig retries persisting three times with 0.5s, 1s pauses in between.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxAttempts: 3,                      //nolint:mnd // see doc comment
		BackoffStep: 500 * time.Millisecond, //nolint:mnd // see doc comment
		Now:         time.Now,
		Sleep:       sleepContext,
		NewID:       uuid.NewString,
	}
}

// Store creates, advances, persists and restores research sessions.
type Store struct {
	cfg    StoreConfig
	logger *slog.Logger
}

func NewStore(logger *slog.Logger, cfg StoreConfig) *Store {
	defaults := DefaultStoreConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = defaults.BackoffStep
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = defaults.Sleep
	}
	if cfg.NewID == nil {
		cfg.NewID = defaults.NewID
	}
	return &Store{
		cfg:    cfg,
		logger: logger.With("source", "research.Store"),
	}
}

// Create starts a new session for query in mode positioned at the mode's first phase.
func (st *Store) Create(query string, mode Mode) (*Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(ErrEmptyQuery, "create session")
	}
	first, err := FirstPhase(mode)
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	s := &Session{
		Query:     query,
		Mode:      mode,
		Phase:     first,
		Scope:     map[string]any{},
		Plan:      map[string]any{},
		Sources:   []Source{},
		Findings:  []Finding{},
		Synthesis: map[string]any{},
		Critique:  map[string]any{},
		Report:    "",
		Metadata: Metadata{
			ID:        st.cfg.NewID(),
			StartedAt: st.now(),
			Version:   FormatVersion,
		},
		Closed: false,
	}
	st.logger.Info("created research session",
		slog.String("session", s.ID()), slog.String("mode", string(mode)), slog.String("phase", string(first)))
	return s, nil
}

// Advance merges out into the fields owned by the current phase and moves the session to the next active phase.
//
// At the terminal phase the session stays put and is closed. Advancing a closed session is a no-op.
func (st *Store) Advance(ctx context.Context, s *Session, out PhaseOutput) (*Session, error) {
	ctx = logging.WithSession(ctx, s.ID())
	if s.Closed {
		st.logger.DebugContext(ctx, "ignoring advance of closed session", slog.String("phase", string(s.Phase)))
		return s, nil
	}

	next, hasNext, err := NextPhase(s.Mode, s.Phase)
	if err != nil {
		return nil, errors.Wrap(err, "advance session", slog.String("session", s.ID()))
	}
	merged, err := merge(s, out, st.now())
	if err != nil {
		return nil, errors.Wrap(err, "merge phase output", slog.String("phase", string(s.Phase)))
	}
	finished := s.Phase
	*s = *merged
	if hasNext {
		s.Phase = next
	} else {
		s.Closed = true
	}

	st.logger.InfoContext(ctx, "advanced research session",
		slog.String("completed", string(finished)),
		slog.String("phase", string(s.Phase)),
		slog.Bool("closed", s.Closed),
		slog.Int("sources", len(s.Sources)),
		slog.Int("findings", len(s.Findings)))
	return s, nil
}

// Persist writes the full snapshot of s to dst, retrying failed writes with a linearly growing pause.
func (st *Store) Persist(ctx context.Context, s *Session, dst Destination) error {
	ctx = logging.WithSession(ctx, s.ID())
	data, err := Encode(s)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	var lastErr error
	for attempt := 1; attempt <= st.cfg.MaxAttempts; attempt++ {
		if lastErr = dst.Replace(ctx, data); lastErr == nil {
			st.logger.DebugContext(ctx, "persisted session",
				slog.Int("attempt", attempt), slog.Int("bytes", len(data)))
			return nil
		}
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "persist session", errors.SlogError(lastErr))
		}
		st.logger.LogAttrs(ctx, slog.LevelWarn, "persist attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("maxAttempts", st.cfg.MaxAttempts),
			errors.SlogError(lastErr))
		if attempt == st.cfg.MaxAttempts {
			break
		}
		if err = st.cfg.Sleep(ctx, time.Duration(attempt)*st.cfg.BackoffStep); err != nil {
			return errors.Wrap(err, "wait before persist retry")
		}
	}
	return errors.Wrap(
		fmt.Errorf("%w after %d attempts: %w", ErrPersistFailed, st.cfg.MaxAttempts, lastErr),
		"persist session",
		slog.String("session", s.ID()),
	)
}

// Restore reads a snapshot from src. The restored session resumes at exactly the stored phase.
func (st *Store) Restore(ctx context.Context, src Origin) (*Session, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}
	s, err := Decode(data)
	if err != nil {
		var snapErr *SnapshotError
		if errors.As(err, &snapErr) {
			return nil, errors.Wrap(err, "restore session", slog.String("field", snapErr.Field))
		}
		return nil, errors.Wrap(err, "restore session")
	}
	st.logger.DebugContext(logging.WithSession(ctx, s.ID()), "restored session",
		slog.String("phase", string(s.Phase)), slog.Bool("closed", s.Closed))
	return s, nil
}

func (st *Store) now() time.Time {
	// UTC drops the monotonic reading so that timestamps survive a snapshot round trip unchanged.
	return st.cfg.Now().UTC()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/models"
	"github.com/myrjola/deepresearch/internal/sqlite"
	"log/slog"
	"time"
)

var ErrSessionNotFound = errors.NewSentinel("research session not found")

// timestampLayout is fixed width so that updated_at sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

type SessionRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
	now    func() time.Time
}

func NewSessionRepository(dbs *sqlite.Database, logger *slog.Logger) *SessionRepository {
	return &SessionRepository{
		dbs:    dbs,
		logger: logger.With("source", "SessionRepository"),
		now:    time.Now,
	}
}

// SessionSnapshot is the stored snapshot of one session. It implements research.Destination and research.Origin.
type SessionSnapshot struct {
	repo *SessionRepository
	id   string
}

// Snapshot returns the snapshot slot of the session with id.
func (r *SessionRepository) Snapshot(id string) SessionSnapshot {
	return SessionSnapshot{repo: r, id: id}
}

// snapshotHeader holds the columns denormalised from the snapshot for listing.
type snapshotHeader struct {
	Query    string `json:"query"`
	Mode     string `json:"mode"`
	Phase    string `json:"phase"`
	Closed   bool   `json:"closed"`
	Metadata struct {
		ID string `json:"id"`
	} `json:"metadata"`
}

// Replace upserts the snapshot in a single statement so that readers see either the old or the new row.
func (s SessionSnapshot) Replace(ctx context.Context, snapshot []byte) error {
	var header snapshotHeader
	if err := json.Unmarshal(snapshot, &header); err != nil {
		return errors.Wrap(err, "read snapshot header", slog.String("id", s.id))
	}
	if header.Metadata.ID != s.id {
		return errors.New("snapshot belongs to another session",
			slog.String("id", s.id), slog.String("snapshotID", header.Metadata.ID))
	}

	stmt := `INSERT INTO research_sessions (id, query, mode, phase, closed, snapshot, updated_at)
VALUES (:id, :query, :mode, :phase, :closed, :snapshot, :updated_at)
ON CONFLICT (id) DO UPDATE SET query      = excluded.query,
                               mode       = excluded.mode,
                               phase      = excluded.phase,
                               closed     = excluded.closed,
                               snapshot   = excluded.snapshot,
                               updated_at = excluded.updated_at`
	params := map[string]any{
		"id":         s.id,
		"query":      header.Query,
		"mode":       header.Mode,
		"phase":      header.Phase,
		"closed":     header.Closed,
		"snapshot":   string(snapshot),
		"updated_at": s.repo.now().UTC().Format(timestampLayout),
	}
	if _, err := s.repo.dbs.ReadWrite.NamedExecContext(ctx, stmt, params); err != nil {
		return errors.Wrap(err, "upsert session snapshot", slog.String("id", s.id))
	}
	return nil
}

// Load reads the stored snapshot.
func (s SessionSnapshot) Load(ctx context.Context) ([]byte, error) {
	var snapshot string
	err := s.repo.dbs.ReadOnly.GetContext(ctx, &snapshot, `SELECT snapshot FROM research_sessions WHERE id = ?`, s.id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrSessionNotFound, "load snapshot", slog.String("id", s.id))
	}
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot", slog.String("id", s.id))
	}
	return []byte(snapshot), nil
}

type sessionRow struct {
	models.SessionSummary
	UpdatedAt string `db:"updated_at"`
}

// List returns summaries of all stored sessions, most recently updated first.
func (r *SessionRepository) List(ctx context.Context) ([]models.SessionSummary, error) {
	var rows []sessionRow
	stmt := `SELECT id, query, mode, phase, closed, updated_at
FROM research_sessions
ORDER BY updated_at DESC, id`
	if err := r.dbs.ReadOnly.SelectContext(ctx, &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "query sessions")
	}

	summaries := make([]models.SessionSummary, 0, len(rows))
	for _, row := range rows {
		summary := row.SessionSummary
		updatedAt, err := time.Parse(timestampLayout, row.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "parse updated_at", slog.String("id", summary.ID))
		}
		summary.UpdatedAt = updatedAt
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Delete removes the session with id. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.dbs.ReadWrite.ExecContext(ctx, `DELETE FROM research_sessions WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "delete session", slog.String("id", id))
	}
	return nil
}

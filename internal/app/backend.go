package app

import (
	"context"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/filestore"
	"github.com/myrjola/deepresearch/internal/models"
	"github.com/myrjola/deepresearch/internal/repositories"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/myrjola/deepresearch/internal/sqlite"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type fileBackend struct {
	dir    filestore.Dir
	logger *slog.Logger
}

func newFileBackend(dir string, logger *slog.Logger) *fileBackend {
	return &fileBackend{dir: filestore.Dir{Path: dir}, logger: logger}
}

func (b *fileBackend) Snapshot(id string) Snapshot {
	return b.dir.For(id)
}

// List decodes every snapshot in the output directory. Unreadable snapshots are logged and skipped.
func (b *fileBackend) List(ctx context.Context) ([]models.SessionSummary, error) {
	ids, err := b.dir.List()
	if err != nil {
		return nil, err
	}
	summaries := make([]models.SessionSummary, 0, len(ids))
	for _, id := range ids {
		snapshot := b.dir.For(id)
		data, err := snapshot.Load(ctx)
		if err != nil {
			return nil, err
		}
		s, err := research.Decode(data)
		if err != nil {
			b.logger.LogAttrs(ctx, slog.LevelWarn, "skipping unreadable snapshot",
				slog.String("path", snapshot.Path), errors.SlogError(err))
			continue
		}
		summary := models.SessionSummary{
			ID:        s.ID(),
			Query:     s.Query,
			Mode:      string(s.Mode),
			Phase:     string(s.Phase),
			Closed:    s.Closed,
			UpdatedAt: s.Metadata.StartedAt,
		}
		if info, statErr := os.Stat(snapshot.Path); statErr == nil {
			summary.UpdatedAt = info.ModTime().UTC()
		}
		summaries = append(summaries, summary)
	}
	slices.SortStableFunc(summaries, func(a, b models.SessionSummary) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return summaries, nil
}

func (b *fileBackend) Close(context.Context) error {
	return nil
}

type sqliteBackend struct {
	db   *sqlite.Database
	repo *repositories.SessionRepository
}

func openSQLiteBackend(ctx context.Context, url string, logger *slog.Logger) (*sqliteBackend, error) {
	if !strings.Contains(url, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(url), 0o750); err != nil { //nolint:mnd // owner and group only
			return nil, errors.Wrap(err, "create database directory", slog.String("url", url))
		}
	}
	db, err := sqlite.NewDatabase(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	return &sqliteBackend{db: db, repo: repositories.NewSessionRepository(db, logger)}, nil
}

func (b *sqliteBackend) Snapshot(id string) Snapshot {
	return b.repo.Snapshot(id)
}

func (b *sqliteBackend) List(ctx context.Context) ([]models.SessionSummary, error) {
	return b.repo.List(ctx)
}

func (b *sqliteBackend) Close(ctx context.Context) error {
	return b.db.Close(ctx)
}

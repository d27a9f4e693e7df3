// Package filestore keeps research session snapshots as JSON files in an output directory.
package filestore

import (
	"context"
	"github.com/myrjola/deepresearch/internal/errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const snapshotExt = ".json"

var ErrNotFound = errors.NewSentinel("snapshot not found")

// Snapshot is a single snapshot file. It implements research.Destination and research.Origin.
type Snapshot struct {
	Path string
}

// Replace atomically replaces the snapshot file with data.
//
// data is written to a temporary file in the same directory, synced and renamed over Path so that readers never
// observe a partially written snapshot.
func (s Snapshot) Replace(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "replace snapshot")
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil { //nolint:mnd // owner and group only
		return errors.Wrap(err, "create snapshot directory", slog.String("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temporary snapshot", slog.String("dir", dir))
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return errors.Wrap(err, "write temporary snapshot", slog.String("path", tmpPath))
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync temporary snapshot", slog.String("path", tmpPath))
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close temporary snapshot", slog.String("path", tmpPath))
	}
	if err = os.Rename(tmpPath, s.Path); err != nil {
		return errors.Wrap(err, "rename snapshot into place", slog.String("path", s.Path))
	}
	committed = true
	return nil
}

// Load reads the snapshot file.
func (s Snapshot) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(ErrNotFound, "load snapshot", slog.String("path", s.Path))
	}
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot", slog.String("path", s.Path))
	}
	return data, nil
}

// Dir is the output directory holding one snapshot per session id.
type Dir struct {
	Path string
}

// For returns the snapshot for session id.
func (d Dir) For(id string) Snapshot {
	return Snapshot{Path: filepath.Join(d.Path, filepath.Base(id)+snapshotExt)}
}

// List returns the ids of all stored sessions in lexical order. A missing directory holds no sessions.
func (d Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read output directory", slog.String("dir", d.Path))
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != snapshotExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, snapshotExt))
	}
	slices.Sort(ids)
	return ids, nil
}

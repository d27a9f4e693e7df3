// Package app wires configuration, logging and the snapshot backend for the command line tools.
package app

import (
	"context"
	"github.com/myrjola/deepresearch/internal/ai"
	"github.com/myrjola/deepresearch/internal/citations"
	"github.com/myrjola/deepresearch/internal/config"
	"github.com/myrjola/deepresearch/internal/doi"
	"github.com/myrjola/deepresearch/internal/driver"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/fetch"
	"github.com/myrjola/deepresearch/internal/logging"
	"github.com/myrjola/deepresearch/internal/models"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/myrjola/deepresearch/internal/search"
	"io"
	"log/slog"
	"os"
)

const logFileMaxSizeMB = 10

// Snapshot is where one session is persisted.
type Snapshot interface {
	research.Destination
	research.Origin
}

// Backend stores session snapshots.
type Backend interface {
	Snapshot(id string) Snapshot
	List(ctx context.Context) ([]models.SessionSummary, error)
	Close(ctx context.Context) error
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Store   *research.Store
	Backend Backend

	logCloser io.Closer
}

// New builds the application from cfg. Log records are written to logSink.
func New(ctx context.Context, cfg config.Config, logSink io.Writer) (*App, error) {
	logger, logCloser := logging.New(logSink, logging.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		MaxSizeMB: logFileMaxSizeMB,
	})

	var (
		backend Backend
		err     error
	)
	switch cfg.Store {
	case config.StoreSQLite:
		backend, err = openSQLiteBackend(ctx, cfg.SQLiteURL, logger)
	default:
		backend = newFileBackend(cfg.OutputDir, logger)
	}
	if err != nil {
		_ = logCloser.Close()
		return nil, errors.Wrap(err, "open backend", slog.String("store", cfg.Store))
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     research.NewStore(logger, cfg.StoreConfig()),
		Backend:   backend,
		logCloser: logCloser,
	}, nil
}

// Close releases the backend and flushes the log file.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Backend.Close(ctx), a.logCloser.Close())
}

// Load restores the session with id.
func (a *App) Load(ctx context.Context, id string) (*research.Session, error) {
	s, err := a.Store.Restore(ctx, a.Backend.Snapshot(id))
	if err != nil {
		return nil, errors.Wrap(err, "load session", slog.String("session", id))
	}
	return s, nil
}

// Save persists s to its snapshot.
func (a *App) Save(ctx context.Context, s *research.Session) error {
	return a.Store.Persist(ctx, s, a.Backend.Snapshot(s.ID()))
}

// Runner builds the model-backed phase runner.
func (a *App) Runner(extraPasses int) *driver.Runner {
	client := ai.NewClient(ai.Config{
		APIKey:  a.Config.OpenAIKey,
		BaseURL: a.Config.OpenAIBaseURL,
		Model:   a.Config.OpenAIModel,
	})
	executor := ai.NewExecutor(a.Logger, client,
		search.NewDuckDuckGo(a.Logger, nil, a.Config.SearchURL, a.Config.SearchResults),
		fetch.NewHTTPFetcher(nil, a.Config.FetchMaxBytes))
	return driver.NewRunner(a.Logger, a.Store, executor, extraPasses)
}

// Verifier builds a citation verifier resolving DOIs through the configured resolver.
func (a *App) Verifier(strict bool) *citations.Verifier {
	resolver := doi.NewResolver(a.Logger, nil, a.Config.DOIBaseURL, a.Config.DOITimeout)
	return citations.NewVerifier(a.Logger, resolver, citations.NewHTTPChecker(nil, a.Config.DOITimeout),
		a.Config.DOIConcurrency, strict)
}

// FromEnv loads the configuration from the process environment and builds the application.
func FromEnv(ctx context.Context, logSink io.Writer) (*App, error) {
	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, logSink)
}

// With opens the application from the environment for the duration of fn and closes it afterwards.
func With(ctx context.Context, logSink io.Writer, fn func(ctx context.Context, a *App) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := FromEnv(ctx, logSink)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close(ctx))
	}()
	return fn(ctx, a)
}

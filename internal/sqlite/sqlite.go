package sqlite

import (
	"context"
	"fmt"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/random"
	"log/slog"
	"strings"
	"time"

	_ "embed"
	_ "github.com/mattn/go-sqlite3" // Enable sqlite3 driver
)

//go:embed schema.sql
var schemaDefinition string

// schemaVersion is stored in PRAGMA user_version once schema.sql has been applied.
const schemaVersion = 1

type Database struct {
	ReadWrite *sqlx.DB
	ReadOnly  *sqlx.DB
	logger    *slog.Logger
}

// NewDatabase connects to database and applies the schema.
//
// It establishes two database connections, one for read/write operations and one for read-only operations.
// This is a best practice mentioned in https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
//
// The url parameter is the path to the SQLite database file or ":memory:" for an in-memory database.
func NewDatabase(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	var (
		err         error
		readWriteDB *sqlx.DB
		readDB      *sqlx.DB
	)

	// For in-memory databases, we need shared cache mode so that both databases access the same data.
	//
	// For parallel tests, we need to use a different database file for each test to avoid sharing data.
	// See https://www.sqlite.org/inmemorydb.html.
	isInMemory := strings.Contains(url, ":memory:")
	inMemoryConfig := ""
	if isInMemory {
		var (
			randomID     string
			dbNameLength uint = 20
		)
		if randomID, err = random.Letters(dbNameLength); err != nil {
			return nil, errors.Wrap(err, "generate random ID")
		}
		url = randomID
		inMemoryConfig = "&mode=memory&cache=shared"
	}
	commonConfig := strings.Join([]string{
		// Write-ahead logging enables concurrent readers while a snapshot is written.
		"_journal_mode=wal",
		// Avoids SQLITE_BUSY errors when several agents touch the database.
		"_busy_timeout=5000",
		// Snapshots are small, full durability is affordable.
		"_synchronous=full",
		"_foreign_keys=on",
	}, "&")

	// The options prefixed with underscore '_' are SQLite pragmas documented at https://www.sqlite.org/pragma.html.
	// The options without leading underscore are SQLite URI parameters documented at https://www.sqlite.org/uri.html.
	// The read-write connection comes first so that the schema exists before readers attach.
	readWriteConfig := fmt.Sprintf("file:%s?_txlock=immediate&%s%s", url, commonConfig, inMemoryConfig)
	readConfig := fmt.Sprintf("file:%s?_txlock=deferred&_query_only=true&%s%s", url, commonConfig, inMemoryConfig)
	if !isInMemory {
		readWriteConfig += "&mode=rwc"
		readConfig += "&mode=ro"
	}

	if readWriteDB, err = sqlx.Open("sqlite3", readWriteConfig); err != nil {
		return nil, errors.Wrap(err, "open read-write database")
	}

	readWriteDB.SetMaxOpenConns(1)
	readWriteDB.SetMaxIdleConns(1)
	readWriteDB.SetConnMaxLifetime(time.Hour)
	readWriteDB.SetConnMaxIdleTime(time.Hour)

	db := Database{
		ReadWrite: readWriteDB,
		ReadOnly:  nil,
		logger:    logger.With("source", "sqlite.Database"),
	}

	if err = db.migrate(ctx); err != nil {
		_ = readWriteDB.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	if readDB, err = sqlx.Open("sqlite3", readConfig); err != nil {
		_ = readWriteDB.Close()
		return nil, errors.Wrap(err, "open read database")
	}

	maxReadConns := 10
	readDB.SetMaxOpenConns(maxReadConns)
	readDB.SetMaxIdleConns(maxReadConns)
	readDB.SetConnMaxLifetime(time.Hour)
	readDB.SetConnMaxIdleTime(time.Hour)
	db.ReadOnly = readDB

	return &db, nil
}

// migrate applies schema.sql once and records the version in PRAGMA user_version.
func (db *Database) migrate(ctx context.Context) error {
	var current int
	if err := db.ReadWrite.GetContext(ctx, &current, "PRAGMA user_version"); err != nil {
		return errors.Wrap(err, "read schema version")
	}
	if current == schemaVersion {
		return nil
	}
	if current > schemaVersion {
		return errors.New("database schema is newer than this binary",
			slog.Int("current", current), slog.Int("supported", schemaVersion))
	}

	tx, err := db.ReadWrite.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		// Rollback after commit is a no-op returning sql.ErrTxDone.
		_ = tx.Rollback()
	}()
	if _, err = tx.ExecContext(ctx, schemaDefinition); err != nil {
		return errors.Wrap(err, "execute schema")
	}
	// PRAGMA does not accept bound parameters.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return errors.Wrap(err, "write schema version")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit schema")
	}
	db.logger.LogAttrs(ctx, slog.LevelInfo, "applied database schema",
		slog.Int("from", current), slog.Int("to", schemaVersion))
	return nil
}

// Close runs PRAGMA optimize as recommended for short-lived connections and closes both pools.
// See https://www.sqlite.org/pragma.html#pragma_optimize.
func (db *Database) Close(ctx context.Context) error {
	start := time.Now()
	if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		db.logger.LogAttrs(ctx, slog.LevelWarn, "failed to optimize database",
			errors.SlogError(errors.Wrap(err, "optimize database")))
	} else {
		db.logger.LogAttrs(ctx, slog.LevelDebug, "optimized database",
			slog.Duration("duration", time.Since(start)))
	}
	return errors.Join(
		errors.Wrap(db.ReadOnly.Close(), "close read database"),
		errors.Wrap(db.ReadWrite.Close(), "close read-write database"),
	)
}

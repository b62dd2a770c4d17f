// Package cache persists extracted import records between runs in a SQLite
// database under the analysis root.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Dir and FileName locate the database relative to the analysis root.
const (
	Dir      = ".cdd"
	FileName = "cache.db"
)

// schemaVersion is stored in PRAGMA user_version. A database with any other
// version is dropped and recreated; its rows are only a cache.
const schemaVersion = 1

// imports holds one row per source file. payload is the zstd-compressed
// JSON record list; options names the extractor and its settings so a
// change of either invalidates the row.
const schema = `
CREATE TABLE IF NOT EXISTS imports (
	path     TEXT PRIMARY KEY,
	size     INTEGER NOT NULL,
	mod_time INTEGER NOT NULL,
	options  TEXT NOT NULL,
	payload  BLOB NOT NULL
)`

var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"temp_store(MEMORY)",
}

// DB is an open cache database.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
	path   string
}

// Open opens or creates the cache database at <root>/.cdd/cache.db.
func Open(ctx context.Context, root string, logger *slog.Logger) (*DB, error) {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}
	return OpenPath(ctx, filepath.Join(dir, FileName), logger)
}

// OpenPath opens or creates a cache database at an explicit path.
func OpenPath(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	conn, err := sql.Open("sqlite", path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Extraction workers share one connection; SQLite serializes writers.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, logger: logger, path: path}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to prepare cache schema: %w", err)
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	var version int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version == schemaVersion {
		return nil
	}
	if version != 0 {
		db.logger.Info("Rebuilding extraction cache", "from_version", version, "to_version", schemaVersion)
	} else {
		db.logger.Debug("Creating extraction cache", "path", db.path)
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS imports"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
		return err
	})
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx runs fn in a transaction, committing when it returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Debug("Rollback failed", "error", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

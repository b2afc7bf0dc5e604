package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/msomdec/expense-store/internal/domain"
	"github.com/msomdec/expense-store/internal/repository/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5 * time.Second

// Options tunes the SQLite connection.
type Options struct {
	// BusyTimeout bounds how long a write waits on a lock held by another
	// process. Zero means five seconds.
	BusyTimeout time.Duration
}

// DB wraps a *sql.DB and implements domain.Database.
type DB struct {
	SQLDB *sql.DB
	path  string
}

// New opens a SQLite database at the given path and configures it for use.
// It enables WAL mode and a busy timeout. Failures are reported as
// domain.ErrConnection.
func New(dbPath string, opts Options) (*DB, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("%w: database path is required", domain.ErrConnection)
	}
	if !isMemory(dbPath) {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database dir: %w", domain.ErrConnection, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", domain.ErrConnection, err)
	}

	// A single connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	if _, err := db.ExecContext(context.Background(), fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set busy timeout: %w", domain.ErrConnection, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %w", domain.ErrConnection, err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", domain.ErrConnection, err)
	}

	return &DB{SQLDB: db, path: dbPath}, nil
}

// Migrate brings the schema up to migrations.SchemaVersion. An existing
// expenses table is left untouched.
func (db *DB) Migrate(ctx context.Context) error {
	exists, err := tableExists(ctx, db.SQLDB, "expenses")
	if err != nil {
		return fmt.Errorf("%w: inspect schema: %w", domain.ErrConnection, err)
	}
	if exists {
		slog.Info("expenses store already exists, no action needed", "path", db.path)
	}

	if err := migrations.Run(ctx, db.SQLDB); err != nil {
		return fmt.Errorf("%w: migrate: %w", domain.ErrConnection, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.SQLDB.Close()
}

// Expenses returns the expense repository backed by this database.
func (db *DB) Expenses() domain.ExpenseRepository {
	return NewExpenseRepository(db)
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

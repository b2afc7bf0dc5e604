package sqlite_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/msomdec/expense-store/internal/domain"
	"github.com/msomdec/expense-store/internal/repository/sqlite"
	"github.com/msomdec/expense-store/internal/repository/sqlite/migrations"
)

// Verify that *sqlite.DB implements domain.Database at compile time.
var _ domain.Database = (*sqlite.DB)(nil)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath, sqlite.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestMigrate_FirstRunDoesNotReportExisting(t *testing.T) {
	logs := captureLogs(t)
	newTestDB(t)
	if strings.Contains(logs.String(), "already exists") {
		t.Fatalf("fresh database reported as existing: %q", logs.String())
	}
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	db, err := sqlite.New(dbPath, sqlite.Options{BusyTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()

	// Verify the file and its parent directory were created.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	var timeout int
	if err := db.SQLDB.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("check busy_timeout: %v", err)
	}
	if timeout != 2000 {
		t.Fatalf("expected busy_timeout=2000, got %d", timeout)
	}

	var mode string
	if err := db.SQLDB.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("check journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", mode)
	}
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := sqlite.New("  ", sqlite.Options{})
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestNew_CorruptFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corrupt.db")
	garbage := bytes.Repeat([]byte("this is not a sqlite database "), 64)
	if err := os.WriteFile(dbPath, garbage, 0o600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	db, err := sqlite.New(dbPath, sqlite.Options{})
	if err == nil {
		// Some drivers defer header validation to the first real query.
		err = db.Migrate(context.Background())
		db.Close()
	}
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestMigrate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Verify the expenses table exists by inserting a row.
	if _, err := db.SQLDB.ExecContext(ctx, "INSERT INTO expenses (data) VALUES (?)", `{"amount": 1}`); err != nil {
		t.Fatalf("insert into expenses: %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Second run should be a no-op that keeps existing rows.
	if _, err := db.SQLDB.ExecContext(ctx, "INSERT INTO expenses (data) VALUES ('{}')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	logs := captureLogs(t)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate (idempotent): %v", err)
	}
	if !strings.Contains(logs.String(), "already exists") {
		t.Fatalf("expected existing store to be logged, got %q", logs.String())
	}

	var count int
	if err := db.SQLDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if count != migrations.SchemaVersion() {
		t.Fatalf("expected %d migration records, got %d", migrations.SchemaVersion(), count)
	}

	if err := db.SQLDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses").Scan(&count); err != nil {
		t.Fatalf("count expenses: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected existing row kept, got %d rows", count)
	}
}

func TestMigrate_SchemaTooNew(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.SQLDB.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, filename, applied_at) VALUES (999, '0999_future.sql', 'now')",
	); err != nil {
		t.Fatalf("insert future migration: %v", err)
	}

	err := db.Migrate(ctx)
	if !errors.Is(err, migrations.ErrSchemaTooNew) {
		t.Fatalf("expected ErrSchemaTooNew, got %v", err)
	}
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

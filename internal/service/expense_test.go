package service_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/msomdec/expense-store/internal/domain"
	"github.com/msomdec/expense-store/internal/repository/sqlite"
	"github.com/msomdec/expense-store/internal/service"
)

func newTestExpenseService(t *testing.T) *service.ExpenseService {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath, sqlite.Options{})
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return service.NewExpenseService(db.Expenses())
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestExpenseService_AddAndList(t *testing.T) {
	svc := newTestExpenseService(t)
	logs := captureLogs(t)
	ctx := context.Background()

	before, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	e := &domain.Expense{Fields: map[string]any{"amount": 10, "category": "food"}}
	id, err := svc.Add(ctx, e)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == 0 || e.ID != id {
		t.Fatalf("expected id set on record, got id=%d record=%d", id, e.ID)
	}

	after, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("expected one more expense, got %d -> %d", len(before), len(after))
	}
	last := after[len(after)-1]
	if last.ID != id || last.Fields["amount"] != int64(10) || last.Fields["category"] != "food" {
		t.Fatalf("unexpected stored expense: %+v", last)
	}

	if !strings.Contains(logs.String(), "expense added") {
		t.Fatalf("expected add to be logged, got %q", logs.String())
	}
}

func TestExpenseService_Add_InvalidInput(t *testing.T) {
	svc := newTestExpenseService(t)
	ctx := context.Background()

	if _, err := svc.Add(ctx, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("nil expense: expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Add(ctx, &domain.Expense{ID: -1}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("negative id: expected ErrInvalidInput, got %v", err)
	}
}

func TestExpenseService_InvalidIDs(t *testing.T) {
	svc := newTestExpenseService(t)
	ctx := context.Background()

	for _, id := range []int64{0, -5} {
		if _, err := svc.Get(ctx, id); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Get(%d): expected ErrInvalidInput, got %v", id, err)
		}
		if err := svc.Delete(ctx, id); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Delete(%d): expected ErrInvalidInput, got %v", id, err)
		}
		if err := svc.Update(ctx, id, map[string]any{"a": 1}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Update(%d): expected ErrInvalidInput, got %v", id, err)
		}
	}

	err := svc.ReplaceAll(ctx, []domain.Expense{{ID: -2}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ReplaceAll: expected ErrInvalidInput, got %v", err)
	}
}

func TestExpenseService_UpdateChangesOnlyGivenField(t *testing.T) {
	svc := newTestExpenseService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, &domain.Expense{Fields: map[string]any{"amount": 10, "category": "food", "date": "2026-10-01"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := svc.Update(ctx, id, map[string]any{"amount": 15}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fields["amount"] != int64(15) {
		t.Fatalf("expected amount 15, got %v", got.Fields["amount"])
	}
	if got.Fields["category"] != "food" || got.Fields["date"] != "2026-10-01" {
		t.Fatalf("expected other fields unchanged, got %v", got.Fields)
	}
}

func TestExpenseService_UpdateMissingLogsAndFails(t *testing.T) {
	svc := newTestExpenseService(t)
	logs := captureLogs(t)

	err := svc.Update(context.Background(), 12, map[string]any{"amount": 1})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(logs.String(), "update expense") {
		t.Fatalf("expected failure to be logged, got %q", logs.String())
	}
}

func TestExpenseService_DeleteMissing(t *testing.T) {
	svc := newTestExpenseService(t)
	if err := svc.Delete(context.Background(), 42); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestExpenseService_ReplaceAll(t *testing.T) {
	svc := newTestExpenseService(t)
	logs := captureLogs(t)
	ctx := context.Background()

	for i := range 3 {
		if _, err := svc.Add(ctx, &domain.Expense{Fields: map[string]any{"n": i}}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	replacement := []domain.Expense{
		{Fields: map[string]any{"amount": 1}},
		{Fields: map[string]any{"amount": 2}},
	}
	if err := svc.ReplaceAll(ctx, replacement); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(list))
	}
	for i, e := range list {
		if e.ID != replacement[i].ID {
			t.Fatalf("expected id %d at %d, got %d", replacement[i].ID, i, e.ID)
		}
		if e.Fields["amount"] != int64(i+1) {
			t.Fatalf("expected amount %d, got %v", i+1, e.Fields["amount"])
		}
	}
	if !strings.Contains(logs.String(), "expenses replaced") {
		t.Fatalf("expected replace to be logged, got %q", logs.String())
	}
}

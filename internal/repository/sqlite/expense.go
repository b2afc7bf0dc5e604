package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/msomdec/expense-store/internal/domain"
)

// ExpenseRepository implements domain.ExpenseRepository using SQLite.
type ExpenseRepository struct {
	db *sql.DB
}

// NewExpenseRepository creates a new SQLite-backed ExpenseRepository.
func NewExpenseRepository(db *DB) *ExpenseRepository {
	return &ExpenseRepository{db: db.SQLDB}
}

func (r *ExpenseRepository) List(ctx context.Context) ([]domain.Expense, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, data FROM expenses ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: list expenses: %w", domain.ErrRead, err)
	}
	defer rows.Close()

	expenses := []domain.Expense{}
	for rows.Next() {
		var (
			id   int64
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("%w: scan expense: %w", domain.ErrRead, err)
		}
		fields, err := domain.DecodeFields(data)
		if err != nil {
			return nil, fmt.Errorf("%w: expense %d: %w", domain.ErrRead, id, err)
		}
		expenses = append(expenses, domain.Expense{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list expenses: %w", domain.ErrRead, err)
	}
	return expenses, nil
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*domain.Expense, error) {
	fields, err := getFields(ctx, r.db, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get expense %d: %w", domain.ErrRead, id, err)
	}
	return &domain.Expense{ID: id, Fields: fields}, nil
}

func (r *ExpenseRepository) Create(ctx context.Context, expense *domain.Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrWrite, err)
	}
	defer tx.Rollback()

	id, err := insertExpense(ctx, tx, expense)
	if err != nil {
		return fmt.Errorf("%w: insert expense: %w", domain.ErrWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrWrite, err)
	}

	expense.ID = id
	return nil
}

// ReplaceAll clears the table and inserts every expense in one transaction.
// Assigned ids are written back into the slice only after commit.
func (r *ExpenseRepository) ReplaceAll(ctx context.Context, expenses []domain.Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrWrite, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM expenses"); err != nil {
		return fmt.Errorf("%w: clear expenses: %w", domain.ErrWrite, err)
	}

	ids := make([]int64, len(expenses))
	for i := range expenses {
		id, err := insertExpense(ctx, tx, &expenses[i])
		if err != nil {
			return fmt.Errorf("%w: insert expense %d: %w", domain.ErrWrite, i, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrWrite, err)
	}

	for i := range expenses {
		expenses[i].ID = ids[i]
	}
	return nil
}

// Update reads the stored record, merges patch onto it and writes it back,
// all inside one transaction.
func (r *ExpenseRepository) Update(ctx context.Context, id int64, patch map[string]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrWrite, err)
	}
	defer tx.Rollback()

	fields, err := getFields(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("%w: get expense %d: %w", domain.ErrRead, id, err)
	}

	expense := domain.Expense{ID: id, Fields: fields}
	expense.Merge(patch)

	data, err := domain.EncodeFields(expense.Fields)
	if err != nil {
		return fmt.Errorf("%w: update expense %d: %w", domain.ErrWrite, id, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE expenses SET data = ? WHERE id = ?", string(data), id); err != nil {
		return fmt.Errorf("%w: update expense %d: %w", domain.ErrWrite, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrWrite, err)
	}
	return nil
}

// Delete removes the expense with the given id. Deleting an absent id is
// not an error.
func (r *ExpenseRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: delete expense %d: %w", domain.ErrWrite, id, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getFields(ctx context.Context, q querier, id int64) (map[string]any, error) {
	var data []byte
	err := q.QueryRowContext(ctx, "SELECT data FROM expenses WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return domain.DecodeFields(data)
}

// insertExpense stores one record and returns its id. A record without an
// id gets the next autoincrement value; an explicit id must be free.
func insertExpense(ctx context.Context, tx execer, expense *domain.Expense) (int64, error) {
	data, err := domain.EncodeFields(expense.Fields)
	if err != nil {
		return 0, err
	}

	if expense.ID == 0 {
		result, err := tx.ExecContext(ctx, "INSERT INTO expenses (data) VALUES (?)", string(data))
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses WHERE id = ?", expense.ID).Scan(&n); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, fmt.Errorf("expense %d: %w", expense.ID, domain.ErrDuplicateID)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO expenses (id, data) VALUES (?, ?)", expense.ID, string(data)); err != nil {
		return 0, err
	}
	return expense.ID, nil
}

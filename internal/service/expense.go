package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/msomdec/expense-store/internal/domain"
)

// ExpenseService handles expense operations.
type ExpenseService struct {
	expenses domain.ExpenseRepository
}

// NewExpenseService creates a new ExpenseService.
func NewExpenseService(expenses domain.ExpenseRepository) *ExpenseService {
	return &ExpenseService{expenses: expenses}
}

// List returns every stored expense ordered by id.
func (s *ExpenseService) List(ctx context.Context) ([]domain.Expense, error) {
	expenses, err := s.expenses.List(ctx)
	if err != nil {
		slog.Error("list expenses", "error", err)
		return nil, err
	}
	return expenses, nil
}

// Get returns the expense with the given id.
func (s *ExpenseService) Get(ctx context.Context, id int64) (*domain.Expense, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.expenses.GetByID(ctx, id)
}

// Add stores a new expense and returns its id. The id is also set on the
// record.
func (s *ExpenseService) Add(ctx context.Context, expense *domain.Expense) (int64, error) {
	if expense == nil {
		return 0, fmt.Errorf("%w: expense is required", domain.ErrInvalidInput)
	}
	if expense.ID < 0 {
		return 0, fmt.Errorf("%w: id must not be negative", domain.ErrInvalidInput)
	}

	if err := s.expenses.Create(ctx, expense); err != nil {
		slog.Error("add expense", "error", err)
		return 0, err
	}
	slog.Info("expense added", "id", expense.ID)
	return expense.ID, nil
}

// ReplaceAll discards every stored expense and stores the given ones in a
// single transaction. On failure nothing changes.
func (s *ExpenseService) ReplaceAll(ctx context.Context, expenses []domain.Expense) error {
	for i, e := range expenses {
		if e.ID < 0 {
			return fmt.Errorf("%w: expense %d: id must not be negative", domain.ErrInvalidInput, i)
		}
	}

	if err := s.expenses.ReplaceAll(ctx, expenses); err != nil {
		slog.Error("replace expenses: transaction failed", "error", err)
		return err
	}
	slog.Info("expenses replaced", "count", len(expenses))
	return nil
}

// Delete removes the expense with the given id. A missing id is not an error.
func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := s.expenses.Delete(ctx, id); err != nil {
		slog.Error("delete expense", "id", id, "error", err)
		return err
	}
	slog.Info("expense deleted", "id", id)
	return nil
}

// Update merges fields onto the stored expense. It fails with
// domain.ErrNotFound rather than creating a record when id is absent.
func (s *ExpenseService) Update(ctx context.Context, id int64, fields map[string]any) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := s.expenses.Update(ctx, id, fields); err != nil {
		slog.Error("update expense", "id", id, "error", err)
		return err
	}
	slog.Info("expense updated", "id", id, "fields", len(fields))
	return nil
}

func validateID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", domain.ErrInvalidInput, id)
	}
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/msomdec/expense-store/internal/domain"
	"github.com/msomdec/expense-store/internal/service"
	"github.com/spf13/cobra"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the expense store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withService(cmd.Context(), func(ctx context.Context, svc *service.ExpenseService) error {
				return nil
			})
		},
	}
}

func newListCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print all expenses as a JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withService(cmd.Context(), func(ctx context.Context, svc *service.ExpenseService) error {
				expenses, err := svc.List(ctx)
				if err != nil {
					return err
				}
				return writeJSON(rt.out, expenses)
			})
		},
	}
}

func newGetCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print one expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rt.withService(cmd.Context(), func(ctx context.Context, svc *service.ExpenseService) error {
				expense, err := svc.Get(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(rt.out, expense)
			})
		},
	}
}

func newAddCommand(rt *runtime) *cobra.Command {
	var input recordInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Insert one expense and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := input.fields()
			if err != nil {
				return err
			}
			expense := &domain.Expense{}
			expense.Merge(fields)
			if raw, ok := fields[domain.IDField]; ok {
				id, ok := raw.(int64)
				if !ok {
					return fmt.Errorf("%w: id must be an integer", domain.ErrInvalidInput)
				}
				expense.ID = id
			}

			return rt.withService(cmd.Context(), func(ctx context.Context, svc *service.ExpenseService) error {
				id, err := svc.Add(ctx, expense)
				if err != nil {
					return err
				}
				return writeJSON(rt.out, map[string]int64{"id": id})
			})
		},
	}
	input.bind(cmd)
	return cmd
}

func newUpdateCommand(rt *runtime) *cobra.Command {
	var input recordInput

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Merge fields onto an existing expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			fields, err := input.fields()
			if err != nil {
				return err
			}
			return rt.withService(cmd.Context(), func(ctx context.Context, svc *service.ExpenseService) error {
				return svc.Update(ctx, id, fields)
			})
		},
	}
	input.bind(cmd)
	return cmd
}

func newDeleteCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one expense; a missing id is not an error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rt.withService(cmd.Context(), func(ctx context.Context, svc *service.ExpenseService) error {
				return svc.Delete(ctx, id)
			})
		},
	}
}

func newReplaceCommand(rt *runtime) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Replace all expenses with a JSON array read from --file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			expenses, err := readExpenses(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return rt.withService(cmd.Context(), func(ctx context.Context, svc *service.ExpenseService) error {
				return svc.ReplaceAll(ctx, expenses)
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "JSON file holding an array of expenses, - for stdin")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q is not an integer", domain.ErrInvalidInput, s)
	}
	return id, nil
}

func readExpenses(stdin io.Reader, file string) ([]domain.Expense, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read expenses: %w", err)
	}

	var expenses []domain.Expense
	if err := json.Unmarshal(data, &expenses); err != nil {
		return nil, fmt.Errorf("%w: decode expenses: %v", domain.ErrInvalidInput, err)
	}
	return expenses, nil
}

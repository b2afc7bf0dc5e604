package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/msomdec/expense-store/internal/config"
	"github.com/msomdec/expense-store/internal/logging"
	"github.com/msomdec/expense-store/internal/repository"
	"github.com/msomdec/expense-store/internal/service"
)

type runtime struct {
	flags  *globalFlags
	out    io.Writer
	errOut io.Writer
}

// withService loads config, installs the logger, opens and migrates the
// store, then runs fn. The store is closed when fn returns.
func (rt *runtime) withService(ctx context.Context, fn func(ctx context.Context, svc *service.ExpenseService) error) error {
	cfg, err := config.Load(config.LoadOptions{
		ConfigPath: rt.flags.configPath,
		Flags: config.FlagOverrides{
			Driver: &rt.flags.driver,
			DBPath: &rt.flags.dbPath,
		},
	})
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(rt.errOut, logging.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()
	prev := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(prev)

	store, err := repository.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	slog.Debug("database ready", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)

	return fn(ctx, service.NewExpenseService(store.Expenses()))
}

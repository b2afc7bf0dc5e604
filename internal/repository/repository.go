// Package repository selects and opens the configured storage backend.
package repository

import (
	"fmt"

	"github.com/msomdec/expense-store/internal/config"
	"github.com/msomdec/expense-store/internal/domain"
	"github.com/msomdec/expense-store/internal/repository/bbolt"
	"github.com/msomdec/expense-store/internal/repository/sqlite"
)

// Store is an open database handle together with its expense collection.
type Store interface {
	domain.Database
	Expenses() domain.ExpenseRepository
}

var (
	_ Store = (*sqlite.DB)(nil)
	_ Store = (*bbolt.Store)(nil)
)

// Open opens the backend named by cfg.Driver. The caller runs Migrate once
// before use and owns Close.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.DriverSQLite:
		db, err := sqlite.New(cfg.Path, sqlite.Options{BusyTimeout: cfg.BusyTimeout})
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverBbolt:
		st, err := bbolt.Open(cfg.Path, cfg.BusyTimeout)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", domain.ErrConnection, cfg.Driver)
	}
}

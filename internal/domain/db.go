package domain

import "context"

// Database defines lifecycle operations for the underlying database.
// Each implementation (SQLite, bbolt) owns its own migration strategy,
// ensuring the entire backend is swappable.
type Database interface {
	Migrate(ctx context.Context) error
	Close() error
}

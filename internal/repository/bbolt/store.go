package bbolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/msomdec/expense-store/internal/domain"
	"go.etcd.io/bbolt"
)

const (
	expenseBucket    = "expenses"
	metaBucket       = "meta"
	schemaVersionKey = "schema_version"

	// SchemaVersion is the bucket layout this build writes.
	SchemaVersion = 1

	defaultOpenTimeout = time.Second
)

// ErrSchemaTooNew is returned when the file was written by a newer build.
var ErrSchemaTooNew = errors.New("database schema is newer than this build supports")

var (
	errBucketMissing    = errors.New("expenses bucket is missing, run migrate first")
	errIDSpaceExhausted = errors.New("expense id space exhausted")
)

// Store provides a BoltDB-backed expense store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path. A zero timeout
// waits one second for the file lock.
func Open(path string, timeout time.Duration) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: storage path is required", domain.ErrConnection)
	}
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create storage dir: %w", domain.ErrConnection, err)
	}

	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: open storage db: %w", domain.ErrConnection, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the expenses bucket if absent and records the schema
// version. Running it against an up-to-date file changes nothing.
func (s *Store) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: migrate: %w", domain.ErrConnection, err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}

		current := 0
		if raw := meta.Get([]byte(schemaVersionKey)); raw != nil {
			current, err = strconv.Atoi(string(raw))
			if err != nil {
				return fmt.Errorf("parse schema version %q: %w", raw, err)
			}
		}
		if current > SchemaVersion {
			return fmt.Errorf("%w: db=%d code=%d", ErrSchemaTooNew, current, SchemaVersion)
		}

		if tx.Bucket([]byte(expenseBucket)) != nil {
			slog.Info("expenses store already exists, no action needed", "path", s.db.Path())
		} else {
			if _, err := tx.CreateBucket([]byte(expenseBucket)); err != nil {
				return fmt.Errorf("create expenses bucket: %w", err)
			}
			slog.Info("expenses bucket created", "path", s.db.Path())
		}

		if current == SchemaVersion {
			return nil
		}
		return meta.Put([]byte(schemaVersionKey), []byte(strconv.Itoa(SchemaVersion)))
	})
	if err != nil {
		return fmt.Errorf("%w: migrate: %w", domain.ErrConnection, err)
	}
	return nil
}

// Expenses returns the expense repository backed by this store.
func (s *Store) Expenses() domain.ExpenseRepository {
	return &expenseRepo{db: s.db}
}

// expenseRepo implements domain.ExpenseRepository on the expenses bucket.
// Keys are big-endian ids, so cursor order is id order.
type expenseRepo struct {
	db *bbolt.DB
}

func (r *expenseRepo) List(ctx context.Context) ([]domain.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: list expenses: %w", domain.ErrRead, err)
	}

	expenses := []domain.Expense{}
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		if bucket == nil {
			return errBucketMissing
		}
		return bucket.ForEach(func(k, v []byte) error {
			fields, err := domain.DecodeFields(v)
			if err != nil {
				return fmt.Errorf("expense %d: %w", keyID(k), err)
			}
			expenses = append(expenses, domain.Expense{ID: keyID(k), Fields: fields})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list expenses: %w", domain.ErrRead, err)
	}
	return expenses, nil
}

func (r *expenseRepo) GetByID(ctx context.Context, id int64) (*domain.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: get expense %d: %w", domain.ErrRead, id, err)
	}

	var expense *domain.Expense
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		if bucket == nil {
			return errBucketMissing
		}
		fields, err := getFields(bucket, id)
		if err != nil {
			return err
		}
		expense = &domain.Expense{ID: id, Fields: fields}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get expense %d: %w", domain.ErrRead, id, err)
	}
	return expense, nil
}

func (r *expenseRepo) Create(ctx context.Context, expense *domain.Expense) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: insert expense: %w", domain.ErrWrite, err)
	}

	var id int64
	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		if bucket == nil {
			return errBucketMissing
		}
		var err error
		id, err = putExpense(bucket, expense)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: insert expense: %w", domain.ErrWrite, err)
	}

	expense.ID = id
	return nil
}

// ReplaceAll deletes every key and inserts the given expenses in one
// transaction. The bucket is emptied key by key rather than dropped so its
// sequence, and therefore id uniqueness, survives the clear.
func (r *expenseRepo) ReplaceAll(ctx context.Context, expenses []domain.Expense) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: replace expenses: %w", domain.ErrWrite, err)
	}

	ids := make([]int64, len(expenses))
	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		if bucket == nil {
			return errBucketMissing
		}

		var keys [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("clear expenses: %w", err)
			}
		}

		for i := range expenses {
			id, err := putExpense(bucket, &expenses[i])
			if err != nil {
				return fmt.Errorf("insert expense %d: %w", i, err)
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replace expenses: %w", domain.ErrWrite, err)
	}

	for i := range expenses {
		expenses[i].ID = ids[i]
	}
	return nil
}

func (r *expenseRepo) Update(ctx context.Context, id int64, patch map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: update expense %d: %w", domain.ErrWrite, id, err)
	}

	var readErr error
	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		if bucket == nil {
			return errBucketMissing
		}

		fields, err := getFields(bucket, id)
		if err != nil {
			readErr = err
			return err
		}

		expense := domain.Expense{ID: id, Fields: fields}
		expense.Merge(patch)

		data, err := domain.EncodeFields(expense.Fields)
		if err != nil {
			return err
		}
		return bucket.Put(idKey(id), data)
	})
	if readErr != nil {
		return fmt.Errorf("%w: get expense %d: %w", domain.ErrRead, id, readErr)
	}
	if err != nil {
		return fmt.Errorf("%w: update expense %d: %w", domain.ErrWrite, id, err)
	}
	return nil
}

func (r *expenseRepo) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: delete expense %d: %w", domain.ErrWrite, id, err)
	}

	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		if bucket == nil {
			return errBucketMissing
		}
		return bucket.Delete(idKey(id))
	})
	if err != nil {
		return fmt.Errorf("%w: delete expense %d: %w", domain.ErrWrite, id, err)
	}
	return nil
}

func getFields(bucket *bbolt.Bucket, id int64) (map[string]any, error) {
	payload := bucket.Get(idKey(id))
	if payload == nil {
		return nil, domain.ErrNotFound
	}
	return domain.DecodeFields(payload)
}

// putExpense stores one record and returns its id. Explicit ids advance the
// bucket sequence so later generated ids never collide with them.
func putExpense(bucket *bbolt.Bucket, expense *domain.Expense) (int64, error) {
	data, err := domain.EncodeFields(expense.Fields)
	if err != nil {
		return 0, err
	}

	id := expense.ID
	if id == 0 {
		seq, err := bucket.NextSequence()
		if err != nil {
			return 0, fmt.Errorf("next sequence: %w", err)
		}
		if seq > math.MaxInt64 {
			return 0, errIDSpaceExhausted
		}
		id = int64(seq)
	} else {
		if id < 0 {
			return 0, fmt.Errorf("%w: id %d must be positive", domain.ErrInvalidInput, id)
		}
		if bucket.Get(idKey(id)) != nil {
			return 0, fmt.Errorf("expense %d: %w", id, domain.ErrDuplicateID)
		}
		if uint64(id) > bucket.Sequence() {
			if err := bucket.SetSequence(uint64(id)); err != nil {
				return 0, fmt.Errorf("set sequence: %w", err)
			}
		}
	}

	if err := bucket.Put(idKey(id), data); err != nil {
		return 0, err
	}
	return id, nil
}

func idKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func keyID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}

// Package tx lets multiple store calls participate in one logical
// transaction. SQL stores join the *sql.Tx carried in context; the in-memory
// stores mirror the same all-or-nothing behavior through snapshots.
package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context so stores participating in the
// same logical operation share it instead of opening their own.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes a unit of work that must commit or roll back as a whole.
type Runner interface {
	RunInTx(ctx context.Context, fn func(context.Context) error) error
}

// SQLRunner backs units with a real database transaction. Stores find it via
// the context helpers above and skip opening their own.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := From(ctx); ok {
		// Already inside a unit; join it.
		return fn(ctx)
	}
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback() //nolint:errcheck

	if err := fn(WithTx(ctx, dbTx)); err != nil {
		return err
	}
	return dbTx.Commit()
}

// Snapshotter is implemented by the in-memory stores: Snapshot captures the
// current rows and returns a function restoring them.
type Snapshotter interface {
	Snapshot() (restore func())
}

// MemoryRunner gives the in-memory store pair the same all-or-nothing
// behavior: on error every participating store is rolled back to its
// snapshot. Units are serialized against each other; writes that bypass a
// unit are not isolated from a concurrent rollback.
type MemoryRunner struct {
	mu     sync.Mutex
	stores []Snapshotter
}

func NewMemoryRunner(stores ...Snapshotter) *MemoryRunner {
	return &MemoryRunner{stores: stores}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	restores := make([]func(), 0, len(r.stores))
	for _, s := range r.stores {
		restores = append(restores, s.Snapshot())
	}
	if err := fn(ctx); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}

// Passthrough runs the unit directly with no rollback. Test seams that do not
// exercise failure paths use it as the default.
type Passthrough struct{}

func (Passthrough) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

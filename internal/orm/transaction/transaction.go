// Package transaction scopes persistence calls to a database transaction.
// The active transaction travels in the context, so every operation given
// that context runs inside it; nested scopes use savepoints.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrNestedTransactionNotSupported is returned when nested transactions are not supported
	ErrNestedTransactionNotSupported = errors.New("nested transactions require an existing transaction")
	// ErrTransactionDone is returned when a finished transaction is committed again
	ErrTransactionDone = errors.New("transaction already finished")
)

// savepointCounter provides unique savepoint names across all transactions
var savepointCounter atomic.Uint64

// Transaction represents a database transaction with support for nesting
type Transaction struct {
	tx            *sql.Tx
	ctx           context.Context
	level         int // 0 = top-level, 1+ = savepoint
	savepointName string
	committed     atomic.Bool
	rolledBack    atomic.Bool
}

// Manager manages database transactions
type Manager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: db, logger: logger}
}

// Begin starts a transaction. When ctx already carries one, a savepoint
// nested in it is returned instead.
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	if outer, ok := FromContext(ctx); ok {
		return outer.BeginNested(ctx)
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx, ctx: ctx}, nil
}

// WithTransaction runs fn with a context carrying a transaction.
// It commits when fn succeeds and rolls back when fn fails or panics.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context()); err != nil {
		m.logger.Debug("rolling back", zap.Int("level", tx.level), zap.Error(err))
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Context returns a context with the transaction embedded
func (t *Transaction) Context() context.Context {
	return WithContext(t.ctx, t)
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// Level returns the nesting level of the transaction
func (t *Transaction) Level() int {
	return t.level
}

// Commit commits the transaction, or releases its savepoint
func (t *Transaction) Commit() error {
	if t.committed.Load() || t.rolledBack.Load() {
		return ErrTransactionDone
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(t.ctx, "RELEASE SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		t.committed.Store(true)
		return nil
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.committed.Store(true)
	return nil
}

// Rollback rolls back the transaction, or to its savepoint
func (t *Transaction) Rollback() error {
	if t.committed.Load() {
		return ErrTransactionDone
	}
	if t.rolledBack.Load() {
		return nil
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(t.ctx, "ROLLBACK TO SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w", err)
		}
		// a rolled back savepoint is still open until released
		if _, err := t.tx.ExecContext(t.ctx, "RELEASE SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		t.rolledBack.Store(true)
		return nil
	}

	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.rolledBack.Store(true)
	return nil
}

// BeginNested creates a nested transaction using a savepoint
func (t *Transaction) BeginNested(ctx context.Context) (*Transaction, error) {
	if t.tx == nil {
		return nil, ErrNestedTransactionNotSupported
	}

	name := fmt.Sprintf("sp_%d_%d", savepointCounter.Add(1), t.level+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	return &Transaction{
		tx:            t.tx,
		ctx:           ctx,
		level:         t.level + 1,
		savepointName: name,
	}, nil
}

// IsCommitted returns true if the transaction has been committed
func (t *Transaction) IsCommitted() bool {
	return t.committed.Load()
}

// IsRolledBack returns true if the transaction has been rolled back
func (t *Transaction) IsRolledBack() bool {
	return t.rolledBack.Load()
}

package transaction

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

// FromContext returns the transaction ctx carries, if any
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*Transaction)
	return tx, ok
}

// WithContext returns a copy of ctx carrying tx
func WithContext(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

// MustFromContext is FromContext for code only reachable from inside
// WithTransaction
func MustFromContext(ctx context.Context) *Transaction {
	tx, ok := FromContext(ctx)
	if !ok {
		panic("transaction: context carries no transaction")
	}
	return tx
}

// SQLTx returns the database transaction ctx carries. Statements run on it
// take part in the innermost savepoint.
func SQLTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := FromContext(ctx)
	if !ok || tx.tx == nil {
		return nil, false
	}
	return tx.tx, true
}

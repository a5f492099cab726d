// Package tx abstracts the transaction boundary of a chunk.
// Components that take part in a chunk receive the active Tx explicitly or through
// the context, so that data writes and execution metadata commit together.
package tx

import (
	"context"
	"database/sql"
)

// Tx is an open database transaction.
type Tx interface {
	// Exec runs a parameterized statement inside the transaction.
	// Named parameters are written as @name and supplied as a map or sql.NamedArg values.
	Exec(ctx context.Context, query string, args ...interface{}) (rowsAffected int64, err error)

	// Savepoint creates a savepoint within the transaction.
	Savepoint(name string) error

	// RollbackToSavepoint undoes everything done after the named savepoint.
	RollbackToSavepoint(name string) error
}

// TransactionManager manages the lifecycle of transactions.
type TransactionManager interface {
	// Begin starts a transaction bound to ctx. If ctx expires the transaction is rolled back.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits the transaction.
	Commit(tx Tx) error
	// Rollback rolls the transaction back.
	Rollback(tx Tx) error
}

type txContextKey struct{}

// WithTx returns a context carrying t.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, t)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txContextKey{}).(Tx)
	return t, ok && t != nil
}

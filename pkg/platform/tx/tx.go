// Package tx carries an open transaction through a context. Hard delete
// spans several statements across the entity, journal, and activity stores;
// passing the transaction this way lets every store call join the same
// atomic unit without changing signatures.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx returns a context whose store calls run inside the transaction.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From reports the transaction the context carries, if any. Callers fall
// back to the pool when there is none.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

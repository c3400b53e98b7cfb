package database

import (
	"context"

	"github.com/uptrace/bun"
)

type contextKey struct{}

// RunInTx executes fn inside a writer transaction carried by the context.
// Repositories called with the returned context join the transaction.
// Nested calls reuse the outer transaction.
func (c *Connections) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(contextKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return c.Writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, contextKey{}, tx))
	})
}

// Conn returns the transaction carried by ctx, or fallback when there is none.
func Conn(ctx context.Context, fallback *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(contextKey{}).(bun.Tx); ok {
		return tx
	}
	return fallback
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(contextKey{}).(bun.Tx)
	return ok
}

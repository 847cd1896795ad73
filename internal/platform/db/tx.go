package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type txContextKey struct{}

// WithTx executes fn within a transaction using the RepeatableRead isolation level.
// Repositories called with the derived context join the transaction; nested
// calls reuse the outer one.
func WithTx(ctx context.Context, manager *Manager, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	pool, err := manager.Acquire(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Translate("begin tx", fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return Translate("commit tx", fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// Querier returns the transaction bound to ctx, or the shared pool.
func (m *Manager) Querier(ctx context.Context) (Querier, error) {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx, nil
	}
	return m.Acquire(ctx)
}

// InTx reports whether ctx carries a transaction. A transaction is bound to
// one connection and must not be shared by concurrent queries.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return ok
}

// WithinTx adapts WithTx to the transactor ports of the service layer.
func (m *Manager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, m, fn)
}

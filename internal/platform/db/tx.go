package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerTxOptions is used for every ledger mutation. Writers serialise on
// SELECT ... FOR UPDATE row locks, so read committed is sufficient and avoids
// serialization failures on contended stock rows.
var LedgerTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTx executes fn within a transaction. The transaction is rolled back on
// every path that does not reach commit.
func WithTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// SnapshotTxOptions gives a read-only, point-in-time view across several
// queries.
var SnapshotTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

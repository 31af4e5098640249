package contractors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomledger/loomledger/internal/platform/db"
	"github.com/loomledger/loomledger/internal/shared"
)

// Repository persists contractors in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes contractor writes bound to one transaction.
type TxRepository interface {
	InsertContractor(ctx context.Context, c Contractor) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *txRepo) InsertContractor(ctx context.Context, c Contractor) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO contractors (name, contact_info) VALUES ($1, NULLIF($2, '')) RETURNING id`,
		c.Name, c.ContactInfo).Scan(&id)
	return id, err
}

const contractorColumns = `id, name, COALESCE(contact_info, ''), created_at`

// ListContractors returns every contractor ordered by name.
func (r *Repository) ListContractors(ctx context.Context) ([]Contractor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+contractorColumns+` FROM contractors ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Contractor, error) {
		var c Contractor
		err := row.Scan(&c.ID, &c.Name, &c.ContactInfo, &c.CreatedAt)
		return c, err
	})
}

// GetContractor loads a contractor by id.
func (r *Repository) GetContractor(ctx context.Context, id int64) (Contractor, error) {
	var c Contractor
	err := r.pool.QueryRow(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.ContactInfo, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contractor{}, fmt.Errorf("%w: contractor %d", shared.ErrNotFound, id)
	}
	return c, err
}

package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomledger/loomledger/internal/platform/db"
	"github.com/loomledger/loomledger/internal/shared"
)

// Repository persists payments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes payment writes bound to one transaction.
type TxRepository interface {
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	ContractorExists(ctx context.Context, id int64) (bool, error)
	OrderContractor(ctx context.Context, orderID int64) (int64, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds payment writes to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const paymentColumns = `id, order_id, contractor_id, payment_date, amount, COALESCE(notes, ''), created_at`

// ListByContractor returns every payment of a contractor, newest first.
func (r *Repository) ListByContractor(ctx context.Context, contractorID int64) ([]Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE contractor_id = $1 ORDER BY payment_date DESC, id DESC`, contractorID)
}

// ListByOrder returns the payments tied to an order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY payment_date DESC, id DESC`, orderID)
}

// ListAll returns every payment ordered by contractor then date.
func (r *Repository) ListAll(ctx context.Context) ([]Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY contractor_id, payment_date DESC, id DESC`)
}

func (r *Repository) list(ctx context.Context, sql string, args ...any) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (order_id, contractor_id, payment_date, amount, notes)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, p.OrderID, p.ContractorID, p.PaymentDate, p.Amount, p.Notes).Scan(&id)
	return id, err
}

func (r *txRepo) ContractorExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contractors WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepo) OrderContractor(ctx context.Context, orderID int64) (int64, error) {
	var contractorID int64
	err := r.tx.QueryRow(ctx, `SELECT contractor_id FROM orders WHERE id = $1`, orderID).Scan(&contractorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: order %d", shared.ErrNotFound, orderID)
	}
	return contractorID, err
}

func (r *txRepo) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("%w: payment %d", shared.ErrNotFound, id)
	}
	return p, err
}

func (r *txRepo) UpdatePayment(ctx context.Context, p Payment) error {
	_, err := r.tx.Exec(ctx, `UPDATE payments SET amount = $2, payment_date = $3, notes = $4 WHERE id = $1`,
		p.ID, p.Amount, p.PaymentDate, p.Notes)
	return err
}

func (r *txRepo) DeletePayment(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: payment %d", shared.ErrNotFound, id)
	}
	return nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.ContractorID, &p.PaymentDate, &p.Amount, &p.Notes, &p.CreatedAt)
	return p, err
}

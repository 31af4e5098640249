package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/platform/db"
	"github.com/loomledger/loomledger/internal/shared"
	"github.com/loomledger/loomledger/internal/stock"
)

// Repository persists orders and their ledger rows in PostgreSQL.
type Repository struct {
	pool     *pgxpool.Pool
	payments *payments.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, payments: payments.NewRepository(pool)}
}

// TxRepository exposes every write the order engine performs inside one
// transaction, including the stock and payment writes it owns as side effects.
type TxRepository interface {
	stock.TxRepository
	payments.TxRepository

	InsertOrder(ctx context.Context, o Order) (int64, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	ListTransactions(ctx context.Context, orderID int64) ([]StockTransaction, error)
	InsertTransaction(ctx context.Context, t StockTransaction) (int64, error)
	InsertDeduction(ctx context.Context, d Deduction) (int64, error)
	InsertReassignment(ctx context.Context, r Reassignment) (int64, error)
}

type (
	stockTx   = stock.TxRepository
	paymentTx = payments.TxRepository
)

type txRepo struct {
	stockTx
	paymentTx
	tx pgx.Tx
}

// WithTx executes the callback inside a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			stockTx:   stock.NewTxRepository(tx),
			paymentTx: payments.NewTxRepository(tx),
			tx:        tx,
		})
	})
}

const orderColumns = `o.id, o.contractor_id, c.name, o.design_number, COALESCE(o.shade_card, ''), COALESCE(o.quality, ''),
COALESCE(o.size, ''), o.date_issued, o.date_due, o.date_completed, o.penalty_per_day, COALESCE(o.notes, ''), o.status,
o.length_ft, o.width_ft, o.price_per_sqft, o.wage, o.created_at`

// GetOrder loads an order with its contractor name.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+`
FROM orders o JOIN contractors c ON c.id = o.contractor_id WHERE o.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return o, err
}

// ListOrders returns orders matching the filter, newest issue date first.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+`
FROM orders o JOIN contractors c ON c.id = o.contractor_id
WHERE ($1::text = '' OR o.status = $1)
  AND ($2::text = '' OR o.design_number ILIKE '%' || $2 || '%')
  AND ($3::text = '' OR COALESCE(o.shade_card, '') ILIKE '%' || $3 || '%')
  AND ($4::text = '' OR COALESCE(o.quality, '') ILIKE '%' || $4 || '%')
  AND ($5::bigint = 0 OR o.contractor_id = $5)
ORDER BY o.date_issued DESC, o.id DESC`,
		string(filter.Status), filter.DesignNumber, filter.ShadeCard, filter.Quality, filter.ContractorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const transactionColumns = `t.id, t.order_id, t.stock_id, t.tx_type, t.weight_kg, t.price_per_kg, t.affects_inventory,
COALESCE(t.notes, ''), t.created_at, s.type, s.quality, COALESCE(s.color_shade, '')`

// ListTransactions returns an order's stock movements in recording order.
func (r *Repository) ListTransactions(ctx context.Context, orderID int64) ([]StockTransaction, error) {
	return queryTransactions(ctx, r.pool, `SELECT `+transactionColumns+`
FROM stock_transactions t JOIN stock_items s ON s.id = t.stock_id
WHERE t.order_id = $1 ORDER BY t.id`, orderID)
}

// ListPayments returns an order's payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, orderID int64) ([]payments.Payment, error) {
	return r.payments.ListByOrder(ctx, orderID)
}

// ListDeductions returns an order's deductions.
func (r *Repository) ListDeductions(ctx context.Context, orderID int64) ([]Deduction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, amount, reason FROM deductions WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Deduction
	for rows.Next() {
		var d Deduction
		if err := rows.Scan(&d.ID, &d.OrderID, &d.Amount, &d.Reason); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListReassignments returns an order's reassignment log, oldest first.
func (r *Repository) ListReassignments(ctx context.Context, orderID int64) ([]Reassignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, old_contractor_id, new_contractor_id, reassigned_at, COALESCE(reason, '')
FROM order_reassignments WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reassignment
	for rows.Next() {
		var re Reassignment
		if err := rows.Scan(&re.ID, &re.OrderID, &re.OldContractorID, &re.NewContractorID, &re.ReassignedAt, &re.Reason); err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

// ListLedgers loads the orders matching filter together with their
// transactions, payments and deductions using one query per table.
func (r *Repository) ListLedgers(ctx context.Context, filter ListFilter) ([]Ledger, error) {
	list, err := r.ListOrders(ctx, filter)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	ledgers := make([]Ledger, len(list))
	for i, o := range list {
		ids[i] = o.ID
		index[o.ID] = i
		ledgers[i].Order = o
	}

	txs, err := queryTransactions(ctx, r.pool, `SELECT `+transactionColumns+`
FROM stock_transactions t JOIN stock_items s ON s.id = t.stock_id
WHERE t.order_id = ANY($1) ORDER BY t.id`, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range txs {
		l := &ledgers[index[t.OrderID]]
		l.Transactions = append(l.Transactions, t)
	}

	payRows, err := r.pool.Query(ctx, `SELECT id, order_id, contractor_id, payment_date, amount, COALESCE(notes, ''), created_at
FROM payments WHERE order_id = ANY($1) ORDER BY payment_date DESC, id DESC`, ids)
	if err != nil {
		return nil, err
	}
	defer payRows.Close()
	for payRows.Next() {
		var p payments.Payment
		if err := payRows.Scan(&p.ID, &p.OrderID, &p.ContractorID, &p.PaymentDate, &p.Amount, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		l := &ledgers[index[*p.OrderID]]
		l.Payments = append(l.Payments, p)
	}
	if err := payRows.Err(); err != nil {
		return nil, err
	}

	dedRows, err := r.pool.Query(ctx, `SELECT id, order_id, amount, reason FROM deductions WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer dedRows.Close()
	for dedRows.Next() {
		var d Deduction
		if err := dedRows.Scan(&d.ID, &d.OrderID, &d.Amount, &d.Reason); err != nil {
			return nil, err
		}
		l := &ledgers[index[d.OrderID]]
		l.Deductions = append(l.Deductions, d)
	}
	return ledgers, dedRows.Err()
}

func (r *txRepo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (contractor_id, design_number, shade_card, quality, size, date_issued, date_due,
penalty_per_day, notes, status, length_ft, width_ft, price_per_sqft, wage)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13, $14) RETURNING id`,
		o.ContractorID, o.DesignNumber, o.ShadeCard, o.Quality, o.Size, o.DateIssued, o.DateDue,
		o.PenaltyPerDay, o.Notes, string(o.Status), o.LengthFt, o.WidthFt, o.PricePerSqft, o.Wage).Scan(&id)
	return id, err
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+`
FROM orders o JOIN contractors c ON c.id = o.contractor_id WHERE o.id = $1 FOR UPDATE OF o`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return o, err
}

func (r *txRepo) UpdateOrder(ctx context.Context, o Order) error {
	_, err := r.tx.Exec(ctx, `UPDATE orders SET contractor_id = $2, date_due = $3, date_completed = $4, penalty_per_day = $5,
notes = NULLIF($6, ''), status = $7, length_ft = $8, width_ft = $9, price_per_sqft = $10, wage = $11 WHERE id = $1`,
		o.ID, o.ContractorID, o.DateDue, o.DateCompleted, o.PenaltyPerDay, o.Notes, string(o.Status),
		o.LengthFt, o.WidthFt, o.PricePerSqft, o.Wage)
	return err
}

func (r *txRepo) ListTransactions(ctx context.Context, orderID int64) ([]StockTransaction, error) {
	return queryTransactions(ctx, r.tx, `SELECT `+transactionColumns+`
FROM stock_transactions t JOIN stock_items s ON s.id = t.stock_id
WHERE t.order_id = $1 ORDER BY t.id`, orderID)
}

func (r *txRepo) InsertTransaction(ctx context.Context, t StockTransaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (order_id, stock_id, tx_type, weight_kg, price_per_kg, affects_inventory, notes)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')) RETURNING id`,
		t.OrderID, t.StockID, string(t.Type), t.WeightKg, t.PricePerKg, t.AffectsInventory, t.Notes).Scan(&id)
	return id, err
}

func (r *txRepo) InsertDeduction(ctx context.Context, d Deduction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO deductions (order_id, amount, reason) VALUES ($1, $2, $3) RETURNING id`,
		d.OrderID, d.Amount, d.Reason).Scan(&id)
	return id, err
}

func (r *txRepo) InsertReassignment(ctx context.Context, re Reassignment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_reassignments (order_id, old_contractor_id, new_contractor_id, reason)
VALUES ($1, $2, $3, NULLIF($4, '')) RETURNING id`, re.OrderID, re.OldContractorID, re.NewContractorID, re.Reason).Scan(&id)
	return id, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryTransactions(ctx context.Context, q querier, sql string, args ...any) ([]StockTransaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockTransaction
	for rows.Next() {
		var t StockTransaction
		var txType string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.StockID, &txType, &t.WeightKg, &t.PricePerKg, &t.AffectsInventory,
			&t.Notes, &t.CreatedAt, &t.StockType, &t.StockQuality, &t.StockColorShade); err != nil {
			return nil, err
		}
		t.Type = TxType(txType)
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.ContractorID, &o.ContractorName, &o.DesignNumber, &o.ShadeCard, &o.Quality, &o.Size,
		&o.DateIssued, &o.DateDue, &o.DateCompleted, &o.PenaltyPerDay, &o.Notes, &status,
		&o.LengthFt, &o.WidthFt, &o.PricePerSqft, &o.Wage, &o.CreatedAt)
	o.Status = Status(status)
	return o, err
}

package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomledger/loomledger/internal/platform/db"
	"github.com/loomledger/loomledger/internal/shared"
)

// Repository persists stock items in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes row-locked stock operations bound to one transaction.
type TxRepository interface {
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetItemForUpdate(ctx context.Context, id int64) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds stock operations to an open transaction so other
// modules can reserve and release stock inside their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const itemColumns = `id, type, quality, COALESCE(color_shade, ''), price_per_kg, quantity_kg, created_at, updated_at`

// ListItems returns items matching the filter ordered by type then quality.
func (r *Repository) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_items
WHERE ($1::text = '' OR type ILIKE '%' || $1 || '%')
  AND ($2::text = '' OR quality ILIKE '%' || $2 || '%')
  AND ($3::text = '' OR COALESCE(color_shade, '') ILIKE '%' || $3 || '%')
ORDER BY type, quality, COALESCE(color_shade, ''), id`, filter.Type, filter.Quality, filter.ColorShade)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem loads an item by id.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: stock item %d", shared.ErrNotFound, id)
	}
	return item, err
}

func (r *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var shade *string
	if item.ColorShade != "" {
		shade = &item.ColorShade
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_items (type, quality, color_shade, price_per_kg, quantity_kg)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, item.Type, item.Quality, shade, item.PricePerKg, item.QuantityKg).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s / %s / %q already exists", shared.ErrDuplicateItem, item.Type, item.Quality, item.ColorShade)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepo) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	item, err := scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: stock item %d", shared.ErrNotFound, id)
	}
	return item, err
}

func (r *txRepo) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_items SET price_per_kg = $2, quantity_kg = $3, updated_at = NOW() WHERE id = $1`,
		item.ID, item.PricePerKg, item.QuantityKg)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return fmt.Errorf("%w: stock item %d quantity cannot go negative", shared.ErrInsufficientStock, item.ID)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stock item %d", shared.ErrNotFound, item.ID)
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Type, &item.Quality, &item.ColorShade, &item.PricePerKg, &item.QuantityKg, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

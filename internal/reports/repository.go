package reports

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the report aggregations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CurrentlyHeld returns net Issued − Returned weight per contractor and stock
// item over open orders. contractorID 0 selects every contractor.
func (r *Repository) CurrentlyHeld(ctx context.Context, contractorID int64) ([]HeldStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, s.id, s.type, s.quality, COALESCE(s.color_shade, ''),
       SUM(CASE WHEN t.tx_type = 'Issued' THEN t.weight_kg ELSE -t.weight_kg END) AS net
FROM stock_transactions t
JOIN orders o ON o.id = t.order_id
JOIN contractors c ON c.id = o.contractor_id
JOIN stock_items s ON s.id = t.stock_id
WHERE o.status = 'Open' AND ($1::bigint = 0 OR c.id = $1)
GROUP BY c.id, c.name, s.id, s.type, s.quality, s.color_shade
HAVING SUM(CASE WHEN t.tx_type = 'Issued' THEN t.weight_kg ELSE -t.weight_kg END) > $2
ORDER BY c.name, c.id, s.type, s.quality`, contractorID, HeldThreshold)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (HeldStock, error) {
		var h HeldStock
		err := row.Scan(&h.ContractorID, &h.ContractorName, &h.StockID, &h.Type, &h.Quality, &h.ColorShade, &h.NetWeightKg)
		return h, err
	})
}

// IssueHistory returns the total Issued weight per contractor and stock item,
// without netting returns. contractorID 0 selects every contractor.
func (r *Repository) IssueHistory(ctx context.Context, contractorID int64) ([]IssueTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, s.id, s.type, s.quality, COALESCE(s.color_shade, ''), SUM(t.weight_kg)
FROM stock_transactions t
JOIN orders o ON o.id = t.order_id
JOIN contractors c ON c.id = o.contractor_id
JOIN stock_items s ON s.id = t.stock_id
WHERE t.tx_type = 'Issued' AND ($1::bigint = 0 OR c.id = $1)
GROUP BY c.id, c.name, s.id, s.type, s.quality, s.color_shade
ORDER BY c.name, c.id, s.type, s.quality`, contractorID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (IssueTotal, error) {
		var t IssueTotal
		err := row.Scan(&t.ContractorID, &t.ContractorName, &t.StockID, &t.Type, &t.Quality, &t.ColorShade, &t.TotalIssuedKg)
		return t, err
	})
}

package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const timelineSQL = `SELECT id, occurred_at, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text = '' OR entity = $3)
  AND ($4::text = '' OR entity_id = $4)
  AND ($5::text = '' OR action ILIKE '%' || $5 || '%')
ORDER BY occurred_at DESC, id DESC
OFFSET $6 LIMIT $7`

// Timeline returns entries newest first. A zero Limit returns every match.
func (r *Repository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	var limit pgtype.Int8
	if q.Limit > 0 {
		limit = pgtype.Int8{Int64: int64(q.Limit), Valid: true}
	}
	rows, err := r.pool.Query(ctx, timelineSQL,
		timestamptz(q.From), timestamptz(q.To), q.Entity, q.EntityID, q.Action, q.Offset, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var t TimelineRow
		var meta []byte
		if err := row.Scan(&t.ID, &t.At, &t.Action, &t.Entity, &t.EntityID, &meta); err != nil {
			return t, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			t.Meta = meta
		}
		return t, nil
	})
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

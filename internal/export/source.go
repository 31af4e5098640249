package export

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomledger/loomledger/internal/platform/db"
)

// TableNames lists the mirrored tables in sheet order.
var TableNames = []string{
	"contractors",
	"stock_items",
	"orders",
	"stock_transactions",
	"payments",
	"deductions",
	"order_reassignments",
}

// Table is a generic snapshot of one table.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Source loads the tables to mirror.
type Source interface {
	Tables(ctx context.Context) ([]Table, error)
}

// Repository reads every mirrored table from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Tables reads all mirrored tables inside one snapshot so the sheets agree
// with each other.
func (r *Repository) Tables(ctx context.Context) ([]Table, error) {
	tables := make([]Table, 0, len(TableNames))
	err := db.WithTx(ctx, r.pool, db.SnapshotTxOptions, func(tx pgx.Tx) error {
		for _, name := range TableNames {
			t, err := readTable(ctx, tx, name)
			if err != nil {
				return fmt.Errorf("export: read %s: %w", name, err)
			}
			tables = append(tables, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

func readTable(ctx context.Context, tx pgx.Tx, name string) (Table, error) {
	rows, err := tx.Query(ctx, `SELECT * FROM `+pgx.Identifier{name}.Sanitize()+` ORDER BY id`)
	if err != nil {
		return Table{}, err
	}
	defer rows.Close()
	t := Table{Name: name}
	for _, fd := range rows.FieldDescriptions() {
		t.Columns = append(t.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Table{}, err
		}
		t.Rows = append(t.Rows, values)
	}
	return t, rows.Err()
}

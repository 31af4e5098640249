package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// BuildWorkbook renders one sheet per table with a bold header row.
func BuildWorkbook(tables []Table) (*excelize.File, error) {
	f := excelize.NewFile()
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				_ = f.Close()
				return nil, err
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := writeTable(f, t, header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("export: sheet %s: %w", t.Name, err)
		}
	}
	return f, nil
}

func writeTable(f *excelize.File, t Table, headerStyle int) error {
	for col, name := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(t.Name, cell, name); err != nil {
			return err
		}
	}
	if len(t.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := f.SetCellStyle(t.Name, "A1", last, headerStyle); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = cellValue(v)
		}
		if err := f.SetSheetRow(t.Name, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// cellValue converts driver values into types excelize can render.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case pgtype.Numeric:
		raw, err := x.Value()
		if err != nil || raw == nil {
			return ""
		}
		s, _ := raw.(string)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return s
		}
		f, _ := d.Float64()
		return f
	case decimal.Decimal:
		f, _ := x.Float64()
		return f
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

// WriteWorkbook loads every table and streams the workbook to w.
func WriteWorkbook(ctx context.Context, src Source, w io.Writer) error {
	tables, err := src.Tables(ctx)
	if err != nil {
		return err
	}
	f, err := BuildWorkbook(tables)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveFile writes the workbook next to path and renames it into place, so
// readers never observe a partially written file.
func SaveFile(ctx context.Context, src Source, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".export-*.xlsx")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := WriteWorkbook(ctx, src, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

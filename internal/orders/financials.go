package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/shared"
)

// PendingStrategy selects the amount-pending formula.
type PendingStrategy string

const (
	// PendingWage is wage − net stock value − deductions − paid + fine.
	PendingWage PendingStrategy = "wage"
	// PendingStockValue is net stock value − paid + fine, the formula used
	// by the older lending records.
	PendingStockValue PendingStrategy = "stock_value"
)

// ParsePendingStrategy validates a configured strategy name. Empty selects
// PendingWage.
func ParsePendingStrategy(value string) (PendingStrategy, error) {
	switch PendingStrategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PendingWage:
		return PendingWage, nil
	case PendingStockValue:
		return PendingStockValue, nil
	default:
		return "", fmt.Errorf("orders: unknown pending strategy %q", value)
	}
}

// Financials is the derived money view of one order. Values keep full
// precision; call Rounded for display.
type Financials struct {
	OrderID         int64           `json:"order_id"`
	Wage            decimal.Decimal `json:"wage"`
	IssuedValue     decimal.Decimal `json:"issued_value"`
	ReturnedValue   decimal.Decimal `json:"returned_value"`
	NetStockValue   decimal.Decimal `json:"net_stock_value"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	DaysOverdue     int             `json:"days_overdue"`
	TotalFine       decimal.Decimal `json:"total_fine"`
	AmountPending   decimal.Decimal `json:"amount_pending"`
}

// Rounded returns a copy with every amount rounded to two places.
func (f Financials) Rounded() Financials {
	r := f
	for _, v := range []*decimal.Decimal{&r.Wage, &r.IssuedValue, &r.ReturnedValue, &r.NetStockValue,
		&r.AmountPaid, &r.TotalDeductions, &r.TotalFine, &r.AmountPending} {
		*v = v.Round(2)
	}
	return r
}

// Derive computes an order's financials from its ledger rows. It is pure:
// the same ledger, day and strategy always give the same result.
func Derive(l Ledger, today shared.Date, strategy PendingStrategy) Financials {
	f := Financials{
		OrderID:         l.Order.ID,
		Wage:            l.Order.Wage,
		IssuedValue:     decimal.Zero,
		ReturnedValue:   decimal.Zero,
		AmountPaid:      decimal.Zero,
		TotalDeductions: decimal.Zero,
		TotalFine:       decimal.Zero,
	}
	for _, t := range l.Transactions {
		switch t.Type {
		case TxIssued:
			f.IssuedValue = f.IssuedValue.Add(t.Value())
		case TxReturned:
			f.ReturnedValue = f.ReturnedValue.Add(t.Value())
		}
	}
	for _, p := range l.Payments {
		f.AmountPaid = f.AmountPaid.Add(p.Amount)
	}
	for _, d := range l.Deductions {
		f.TotalDeductions = f.TotalDeductions.Add(d.Amount)
	}
	f.NetStockValue = f.IssuedValue.Sub(f.ReturnedValue)

	o := l.Order
	if o.Open() && !o.DateDue.IsZero() && o.PenaltyPerDay.IsPositive() {
		if days := today.DaysSince(o.DateDue); days > 0 {
			f.DaysOverdue = days
			f.TotalFine = o.PenaltyPerDay.Mul(decimal.NewFromInt(int64(days)))
		}
	}

	switch strategy {
	case PendingStockValue:
		f.AmountPending = f.NetStockValue.Sub(f.AmountPaid).Add(f.TotalFine)
	default:
		f.AmountPending = f.Wage.Sub(f.NetStockValue).Sub(f.TotalDeductions).Sub(f.AmountPaid).Add(f.TotalFine)
	}
	return f
}

// Outstanding returns the net weight still held per stock item, counting
// every Returned row (kept stock included) against the issues. Items at or
// below OutstandingEpsilon are left out.
func Outstanding(txs []StockTransaction) map[int64]decimal.Decimal {
	net := make(map[int64]decimal.Decimal)
	for _, t := range txs {
		cur := net[t.StockID]
		if t.Type == TxIssued {
			net[t.StockID] = cur.Add(t.WeightKg)
		} else {
			net[t.StockID] = cur.Sub(t.WeightKg)
		}
	}
	for id, w := range net {
		if !w.GreaterThan(OutstandingEpsilon) {
			delete(net, id)
		}
	}
	return net
}

// FrozenPrice returns the price of the most recent Issued transaction for
// the stock item.
func FrozenPrice(txs []StockTransaction, stockID int64) (decimal.Decimal, bool) {
	var (
		price decimal.Decimal
		found bool
		last  int64
	)
	for _, t := range txs {
		if t.Type != TxIssued || t.StockID != stockID {
			continue
		}
		if !found || t.ID > last {
			price, found, last = t.PricePerKg, true, t.ID
		}
	}
	return price, found
}

package contractors

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/orders"
	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/reports"
)

// Contractor is a party that receives stock and is paid for woven work.
type Contractor struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ContactInfo string    `json:"contact_info"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegisterInput carries the fields of a new contractor.
type RegisterInput struct {
	Name        string
	ContactInfo string
}

// UnspecifiedQuality labels orders created without a carpet quality.
const UnspecifiedQuality = "N/A"

// OrderEntry is an order with its derived financials. AmountOwed is the
// order's pending amount.
type OrderEntry struct {
	orders.Order
	Financials orders.Financials `json:"financials"`
	AmountOwed decimal.Decimal   `json:"amount_owed"`
}

// Summary sums the per-order derivations of one contractor. General payments
// are not tied to an order and are subtracted separately.
type Summary struct {
	Orders          int             `json:"orders"`
	TotalWage       decimal.Decimal `json:"total_wage"`
	IssuedValue     decimal.Decimal `json:"issued_value"`
	ReturnedValue   decimal.Decimal `json:"returned_value"`
	NetStockValue   decimal.Decimal `json:"net_stock_value"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	OrderPayments   decimal.Decimal `json:"order_payments"`
	TotalFine       decimal.Decimal `json:"total_fine"`
	AmountOwed      decimal.Decimal `json:"amount_owed"`
	GeneralPayments decimal.Decimal `json:"general_payments"`
	Balance         decimal.Decimal `json:"balance"`
}

// QualitySummary buckets order financials by the order's carpet quality.
type QualitySummary struct {
	Quality         string          `json:"quality"`
	Orders          int             `json:"orders"`
	TotalWage       decimal.Decimal `json:"total_wage"`
	NetStockValue   decimal.Decimal `json:"net_stock_value"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	Payments        decimal.Decimal `json:"payments"`
	TotalFine       decimal.Decimal `json:"total_fine"`
	AmountOwed      decimal.Decimal `json:"amount_owed"`
}

// GeneralPayments is the bucket of payments with no order reference.
type GeneralPayments struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Ledger is the full read model of one contractor.
type Ledger struct {
	Contractor      Contractor                `json:"contractor"`
	Orders          []OrderEntry              `json:"orders"`
	Transactions    []orders.StockTransaction `json:"transactions"`
	Payments        []payments.Payment        `json:"payments"`
	CurrentlyHeld   []reports.HeldStock       `json:"currently_held"`
	IssueHistory    []reports.IssueTotal      `json:"issue_history"`
	Summary         Summary                   `json:"summary"`
	ByQuality       []QualitySummary          `json:"by_quality"`
	GeneralPayments GeneralPayments           `json:"general_payments"`
}

// Rounded returns a copy with every amount rounded to two places.
func (l Ledger) Rounded() Ledger {
	r := l
	r.Orders = make([]OrderEntry, len(l.Orders))
	for i, o := range l.Orders {
		o.Financials = o.Financials.Rounded()
		o.AmountOwed = o.AmountOwed.Round(2)
		r.Orders[i] = o
	}
	s := &r.Summary
	roundAll(&s.TotalWage, &s.IssuedValue, &s.ReturnedValue, &s.NetStockValue, &s.TotalDeductions,
		&s.OrderPayments, &s.TotalFine, &s.AmountOwed, &s.GeneralPayments, &s.Balance)
	r.ByQuality = make([]QualitySummary, len(l.ByQuality))
	for i, q := range l.ByQuality {
		roundAll(&q.TotalWage, &q.NetStockValue, &q.TotalDeductions, &q.Payments, &q.TotalFine, &q.AmountOwed)
		r.ByQuality[i] = q
	}
	r.GeneralPayments.Amount = l.GeneralPayments.Amount.Round(2)
	return r
}

func roundAll(values ...*decimal.Decimal) {
	for _, v := range values {
		*v = v.Round(2)
	}
}

// Commit event names.
const (
	EntityContractor = "contractor"
	ActionRegistered = "registered"
)

package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/shared"
)

// Status enumerates the order lifecycle. Open moves to Closed exactly once.
type Status string

const (
	// StatusOpen marks an order still being woven.
	StatusOpen Status = "Open"
	// StatusClosed marks a completed order. It is terminal.
	StatusClosed Status = "Closed"
)

// TxType enumerates stock movements recorded against an order.
type TxType string

const (
	// TxIssued moves stock to the contractor.
	TxIssued TxType = "Issued"
	// TxReturned credits stock back from the contractor.
	TxReturned TxType = "Returned"
)

// Transaction notes written by the engine.
const (
	NoteAdditionalIssue  = "Additional stock issued"
	NoteReturnedToStock  = "Returned to inventory"
	NoteKeptByContractor = "Kept by contractor"
	NotePostClosure      = "Post-closure return"
	NoteFinalPayment     = "Final payment on order completion"
)

// OutstandingEpsilon absorbs rounding noise when deciding whether stock is
// still held.
var OutstandingEpsilon = decimal.RequireFromString("0.001")

// Order is a unit of contracted work.
type Order struct {
	ID             int64           `json:"id"`
	ContractorID   int64           `json:"contractor_id"`
	ContractorName string          `json:"contractor_name,omitempty"`
	DesignNumber   string          `json:"design_number"`
	ShadeCard      string          `json:"shade_card"`
	Quality        string          `json:"quality"`
	Size           string          `json:"size"`
	DateIssued     shared.Date     `json:"date_issued"`
	DateDue        shared.Date     `json:"date_due"`
	DateCompleted  shared.Date     `json:"date_completed"`
	PenaltyPerDay  decimal.Decimal `json:"penalty_per_day"`
	Notes          string          `json:"notes"`
	Status         Status          `json:"status"`
	LengthFt       decimal.Decimal `json:"length_ft"`
	WidthFt        decimal.Decimal `json:"width_ft"`
	PricePerSqft   decimal.Decimal `json:"price_per_sqft"`
	Wage           decimal.Decimal `json:"wage"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Open reports whether the order still accepts work.
func (o Order) Open() bool {
	return o.Status == StatusOpen
}

// StockTransaction is a stock movement with the price frozen at issue time.
type StockTransaction struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	StockID          int64           `json:"stock_id"`
	Type             TxType          `json:"type"`
	WeightKg         decimal.Decimal `json:"weight_kg"`
	PricePerKg       decimal.Decimal `json:"price_per_kg"`
	AffectsInventory bool            `json:"affects_inventory"`
	Notes            string          `json:"notes"`
	CreatedAt        time.Time       `json:"created_at"`
	StockType        string          `json:"stock_type,omitempty"`
	StockQuality     string          `json:"stock_quality,omitempty"`
	StockColorShade  string          `json:"stock_color_shade,omitempty"`
}

// Value is weight times frozen price.
func (t StockTransaction) Value() decimal.Decimal {
	return t.WeightKg.Mul(t.PricePerKg)
}

// Deduction withholds an amount from an order's wage.
type Deduction struct {
	ID      int64           `json:"id"`
	OrderID int64           `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
}

// Reassignment is an append-only record of a contractor switch.
type Reassignment struct {
	ID              int64     `json:"id"`
	OrderID         int64     `json:"order_id"`
	OldContractorID int64     `json:"old_contractor_id"`
	NewContractorID int64     `json:"new_contractor_id"`
	ReassignedAt    time.Time `json:"reassigned_at"`
	Reason          string    `json:"reason"`
}

// Issuance requests weight of one stock item for an order.
type Issuance struct {
	StockID  int64           `json:"stock_id"`
	WeightKg decimal.Decimal `json:"weight_kg"`
}

// CreateInput opens a new order.
type CreateInput struct {
	ContractorID  int64
	DesignNumber  string
	ShadeCard     string
	Quality       string
	Size          string
	DateIssued    shared.Date
	DateDue       shared.Date
	PenaltyPerDay decimal.Decimal
	Notes         string
	Length        FeetInches
	Width         FeetInches
	PricePerSqft  decimal.Decimal
	Issuances     []Issuance
	// IdempotencyKey, when set, makes a repeated submission fail instead of
	// opening a second order.
	IdempotencyKey string
}

// Reconciliation splits outstanding stock into returned and kept weight.
type Reconciliation struct {
	StockID        int64           `json:"stock_id"`
	WeightReturned decimal.Decimal `json:"weight_returned"`
	WeightKept     decimal.Decimal `json:"weight_kept"`
}

// DeductionInput is a withholding recorded at completion.
type DeductionInput struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// CompleteInput closes an order.
type CompleteInput struct {
	DateCompleted     shared.Date
	FinalWage         *decimal.Decimal
	FinalLength       *FeetInches
	FinalWidth        *FeetInches
	FinalPricePerSqft *decimal.Decimal
	Reconciliations   []Reconciliation
	Deductions        []DeductionInput
	FinalPayment      decimal.Decimal
}

// UpdateInput edits an open order. Unset fields are left alone.
type UpdateInput struct {
	DateDue       *shared.Date
	Notes         *string
	PenaltyPerDay *decimal.Decimal
}

// Empty reports whether the update carries no change.
func (u UpdateInput) Empty() bool {
	return u.DateDue == nil && u.Notes == nil && u.PenaltyPerDay == nil
}

// ListFilter narrows order listings. Text fields match by substring.
type ListFilter struct {
	Status       Status
	DesignNumber string
	ShadeCard    string
	Quality      string
	ContractorID int64
}

// Ledger is an order with every row its financials derive from.
type Ledger struct {
	Order        Order
	Transactions []StockTransaction
	Payments     []payments.Payment
	Deductions   []Deduction
}

// Commit event names.
const (
	EntityOrder      = "order"
	ActionCreated    = "created"
	ActionUpdated    = "updated"
	ActionIssued     = "stock_issued"
	ActionCompleted  = "completed"
	ActionReturned   = "stock_returned"
	ActionReassigned = "reassigned"
)

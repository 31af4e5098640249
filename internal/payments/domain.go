package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/shared"
)

// Payment is a signed money movement to a contractor. Negative amounts are
// refunds. A payment without an order is a general payment.
type Payment struct {
	ID           int64           `json:"id"`
	OrderID      *int64          `json:"order_id"`
	ContractorID int64           `json:"contractor_id"`
	PaymentDate  shared.Date     `json:"payment_date"`
	Amount       decimal.Decimal `json:"amount"`
	Notes        string          `json:"notes"`
	CreatedAt    time.Time       `json:"created_at"`
}

// General reports whether the payment is not tied to an order.
func (p Payment) General() bool {
	return p.OrderID == nil
}

// AddInput records a payment.
type AddInput struct {
	ContractorID int64
	OrderID      *int64
	Amount       decimal.Decimal
	// Date defaults to today when unset.
	Date  shared.Date
	Notes string
}

// UpdateInput replaces a payment's amount, date and notes.
type UpdateInput struct {
	Amount decimal.Decimal
	Date   shared.Date
	Notes  string
}

// Commit event names.
const (
	EntityPayment = "payment"
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

package shared

import "errors"

var (
	// ErrValidation indicates a missing or invalid input field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateItem indicates a uniqueness violation.
	ErrDuplicateItem = errors.New("duplicate item")
	// ErrInsufficientStock indicates a requested weight exceeds the quantity on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState indicates the order status forbids the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrNoPriorIssuance indicates a return without a matching issued transaction.
	ErrNoPriorIssuance = errors.New("no prior issuance")
	// ErrNoOp indicates a request that would change nothing.
	ErrNoOp = errors.New("no effective change")
)

// Machine readable failure reasons.
const (
	ReasonValidation        = "validation_error"
	ReasonNotFound          = "not_found"
	ReasonDuplicateItem     = "duplicate_item"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonInvalidState      = "invalid_state"
	ReasonNoPriorIssuance   = "no_prior_issuance"
	ReasonNoOp              = "no_op"
	ReasonInternal          = "internal_error"
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrValidation, ReasonValidation},
	{ErrNotFound, ReasonNotFound},
	{ErrDuplicateItem, ReasonDuplicateItem},
	{ErrInsufficientStock, ReasonInsufficientStock},
	{ErrInvalidState, ReasonInvalidState},
	{ErrNoPriorIssuance, ReasonNoPriorIssuance},
	{ErrNoOp, ReasonNoOp},
}

// Reason returns the machine readable reason for err.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}

// UserSafeMessage returns err's message for known domain failures and a generic text otherwise.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if Reason(err) == ReasonInternal {
		return "internal error"
	}
	return err.Error()
}

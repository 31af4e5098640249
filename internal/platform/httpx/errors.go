// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/loomledger/loomledger/internal/shared"
)

// StatusFor maps a domain error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNoOp):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrDuplicateItem),
		errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrInvalidState),
		errors.Is(err, shared.ErrNoPriorIssuance),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. The problem
// type carries the machine readable failure reason.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	reason := shared.Reason(err)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		reason = "idempotency_conflict"
	}
	detail := shared.UserSafeMessage(err)
	if reason == "idempotency_conflict" {
		detail = err.Error()
	}
	JSON(w, status, ProblemDetail{
		Type:   reason,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

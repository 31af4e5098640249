package payments

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/platform/httpx"
	"github.com/loomledger/loomledger/internal/shared"
)

// Handler wires HTTP endpoints for payments.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs payments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.handleAdd)
	r.Put("/payments/{id}", h.handleUpdate)
	r.Delete("/payments/{id}", h.handleDelete)
}

type addPaymentRequest struct {
	ContractorID int64           `json:"contractor_id" validate:"required,gt=0"`
	OrderID      *int64          `json:"order_id" validate:"omitempty,gt=0"`
	Amount       decimal.Decimal `json:"amount"`
	Date         shared.Date     `json:"date"`
	Notes        string          `json:"notes" validate:"max=1000"`
}

type updatePaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   shared.Date     `json:"date"`
	Notes  string          `json:"notes" validate:"max=1000"`
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addPaymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.service.AddPayment(r.Context(), AddInput(req))
	if err != nil {
		h.logger.Warn("add payment", slog.Int64("contractor_id", req.ContractorID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updatePaymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdatePayment(r.Context(), id, UpdateInput(req))
	if err != nil {
		h.logger.Warn("update payment", slog.Int64("payment_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePayment(r.Context(), id); err != nil {
		h.logger.Warn("delete payment", slog.Int64("payment_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package stock

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-items", h.handleList)
	r.Post("/stock-items", h.handleAdd)
	r.Put("/stock-items/{id}", h.handleUpdate)
}

type addItemRequest struct {
	Type       string          `json:"type" validate:"required"`
	Quality    string          `json:"quality" validate:"required"`
	ColorShade string          `json:"color_shade"`
	PricePerKg decimal.Decimal `json:"price_per_kg"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
}

type updateItemRequest struct {
	AddQuantity   *decimal.Decimal `json:"add_quantity"`
	NewPricePerKg *decimal.Decimal `json:"new_price_per_kg"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.service.ListItems(r.Context(), ListFilter{
		Type:       q.Get("type"),
		Quality:    q.Get("quality"),
		ColorShade: q.Get("color_shade"),
	})
	if err != nil {
		h.logger.Error("list stock items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.service.AddItem(r.Context(), AddItemInput(req))
	if err != nil {
		h.logger.Warn("add stock item", slog.Any("error", err))
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
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, UpdateItemInput(req))
	if err != nil {
		h.logger.Warn("update stock item", slog.Int64("stock_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

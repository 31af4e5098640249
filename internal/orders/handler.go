package orders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/platform/httpx"
	"github.com/loomledger/loomledger/internal/shared"
)

// Handler wires HTTP endpoints for the order engine.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleDetail)
			r.Patch("/", h.handleUpdate)
			r.Get("/transactions", h.handleTransactions)
			r.Get("/payments", h.handlePayments)
			r.Get("/deductions", h.handleDeductions)
			r.Get("/reassignments", h.handleReassignments)
			r.Get("/financials", h.handleFinancials)
			r.Post("/issue", h.handleIssue)
			r.Post("/complete", h.handleComplete)
			r.Post("/return-stock", h.handleReturnStock)
			r.Post("/reassign", h.handleReassign)
		})
	})
}

type createOrderRequest struct {
	ContractorID  int64           `json:"contractor_id" validate:"required,gt=0"`
	DesignNumber  string          `json:"design_number" validate:"required"`
	ShadeCard     string          `json:"shade_card"`
	Quality       string          `json:"quality"`
	Size          string          `json:"size"`
	DateIssued    shared.Date     `json:"date_issued"`
	DateDue       shared.Date     `json:"date_due"`
	PenaltyPerDay decimal.Decimal `json:"penalty_per_day"`
	Notes         string          `json:"notes"`
	Length        FeetInches      `json:"length"`
	Width         FeetInches      `json:"width"`
	PricePerSqft  decimal.Decimal `json:"price_per_sqft"`
	Issuances     []Issuance      `json:"issuances" validate:"dive"`
}

type updateOrderRequest struct {
	DateDue       *shared.Date     `json:"date_due"`
	Notes         *string          `json:"notes"`
	PenaltyPerDay *decimal.Decimal `json:"penalty_per_day"`
}

type completeOrderRequest struct {
	DateCompleted     shared.Date      `json:"date_completed"`
	FinalWage         *decimal.Decimal `json:"final_wage"`
	FinalLength       *FeetInches      `json:"final_length"`
	FinalWidth        *FeetInches      `json:"final_width"`
	FinalPricePerSqft *decimal.Decimal `json:"final_price_per_sqft"`
	Reconciliation    []Reconciliation `json:"reconciliation"`
	Deductions        []DeductionInput `json:"deductions"`
	FinalPayment      decimal.Decimal  `json:"final_payment"`
}

type returnStockRequest struct {
	StockID  int64           `json:"stock_id" validate:"required,gt=0"`
	WeightKg decimal.Decimal `json:"weight_kg"`
}

type reassignRequest struct {
	NewContractorID int64  `json:"new_contractor_id" validate:"required,gt=0"`
	Reason          string `json:"reason" validate:"max=500"`
}

type orderDetail struct {
	Order      Order      `json:"order"`
	Financials Financials `json:"financials"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.service.ListOrders(r.Context(), ListFilter{
		Status:       Status(q.Get("status")),
		DesignNumber: q.Get("design_number"),
		ShadeCard:    q.Get("shade_card"),
		Quality:      q.Get("quality"),
	})
	if err != nil {
		h.fail(w, r, "list orders", 0, err)
		return
	}
	if list == nil {
		list = []Order{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.service.CreateOrder(r.Context(), CreateInput{
		ContractorID:   req.ContractorID,
		DesignNumber:   req.DesignNumber,
		ShadeCard:      req.ShadeCard,
		Quality:        req.Quality,
		Size:           req.Size,
		DateIssued:     req.DateIssued,
		DateDue:        req.DateDue,
		PenaltyPerDay:  req.PenaltyPerDay,
		Notes:          req.Notes,
		Length:         req.Length,
		Width:          req.Width,
		PricePerSqft:   req.PricePerSqft,
		Issuances:      req.Issuances,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, "create order", 0, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	l, err := h.service.Ledger(r.Context(), id)
	if err != nil {
		h.fail(w, r, "load order", id, err)
		return
	}
	fin := Derive(l, h.service.Today(), h.service.Strategy())
	httpx.JSON(w, http.StatusOK, orderDetail{Order: l.Order, Financials: fin.Rounded()})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.UpdateOrder(r.Context(), id, UpdateInput(req))
	if err != nil {
		h.fail(w, r, "update order", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	txs, err := h.service.Transactions(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list order transactions", id, err)
		return
	}
	if txs == nil {
		txs = []StockTransaction{}
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) handlePayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	pays, err := h.service.Payments(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list order payments", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nonNil(pays))
}

func (h *Handler) handleDeductions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	deds, err := h.service.Deductions(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list order deductions", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nonNil(deds))
}

func (h *Handler) handleReassignments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	log, err := h.service.Reassignments(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list order reassignments", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nonNil(log))
}

func (h *Handler) handleFinancials(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	fin, err := h.service.Financials(r.Context(), id)
	if err != nil {
		h.fail(w, r, "order financials", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fin.Rounded())
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req Issuance
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	txID, err := h.service.IssueStock(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "issue stock", id, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"transaction_id": txID})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req completeOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	err := h.service.CompleteOrder(r.Context(), id, CompleteInput{
		DateCompleted:     req.DateCompleted,
		FinalWage:         req.FinalWage,
		FinalLength:       req.FinalLength,
		FinalWidth:        req.FinalWidth,
		FinalPricePerSqft: req.FinalPricePerSqft,
		Reconciliations:   req.Reconciliation,
		Deductions:        req.Deductions,
		FinalPayment:      req.FinalPayment,
	})
	if err != nil {
		h.fail(w, r, "complete order", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReturnStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req returnStockRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ReturnStockForOrder(r.Context(), id, req.StockID, req.WeightKg); err != nil {
		h.fail(w, r, "post-closure return", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReassign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req reassignRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ReassignOrder(r.Context(), id, req.NewContractorID, req.Reason); err != nil {
		h.fail(w, r, "reassign order", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, orderID int64, err error) {
	level := slog.LevelWarn
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, op, slog.Int64("order_id", orderID), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package contractors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loomledger/loomledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for contractors.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs contractor handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers contractor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/contractors", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleRegister)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/ledger", h.handleLedger)
	})
}

type registerRequest struct {
	Name        string `json:"name" validate:"required"`
	ContactInfo string `json:"contact_info" validate:"max=500"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list contractors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Contractor{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.service.Register(r.Context(), RegisterInput(req))
	if err != nil {
		h.logger.Warn("register contractor", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.Ledger(r.Context(), id)
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("contractor ledger", slog.Int64("contractor_id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l.Rounded())
}

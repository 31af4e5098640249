package reports

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loomledger/loomledger/internal/platform/httpx"
)

// Handler exposes the stock reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-reports/currently-held", h.handleHeld)
	r.Get("/stock-reports/issue-history", h.handleIssueHistory)
}

func (h *Handler) handleHeld(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.CurrentlyHeld(r.Context())
	if err != nil {
		h.logger.Error("currently held report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) handleIssueHistory(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.IssueHistory(r.Context())
	if err != nil {
		h.logger.Error("issue history report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

package export

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loomledger/loomledger/internal/platform/httpx"
)

// Handler streams the workbook on demand.
type Handler struct {
	logger *slog.Logger
	source Source
}

// NewHandler constructs export handler.
func NewHandler(logger *slog.Logger, source Source) *Handler {
	return &Handler{logger: logger, source: source}
}

// MountRoutes registers export routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/export.xlsx", h.handleDownload)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := WriteWorkbook(r.Context(), h.source, &buf); err != nil {
		h.logger.Error("export download", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="loomledger.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

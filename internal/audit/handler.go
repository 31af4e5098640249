package audit

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/loomledger/loomledger/internal/platform/httpx"
	"github.com/loomledger/loomledger/internal/shared"
)

// Handler serves the audit trail.
type Handler struct {
	logger  *slog.Logger
	service *Service
	limiter func(http.Handler) http.Handler
}

// NewHandler builds the audit handler. CSV exports are limited to 10 per minute per client.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		limiter: httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/", h.handleTimeline)
		r.With(h.limiter).Get("/export.csv", h.handleExportCSV)
	})
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("audit timeline", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-%s.csv", time.Now().UTC().Format("20060102")))
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "occurred_at", "action", "entity", "entity_id", "meta"})
	for _, row := range rows {
		_ = cw.Write([]string{
			strconv.FormatInt(row.ID, 10),
			row.At.UTC().Format(time.RFC3339),
			row.Action,
			row.Entity,
			row.EntityID,
			string(row.Meta),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("audit csv write", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	f := TimelineFilters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	var err error
	if f.From, err = parseDay(q.Get("from")); err != nil {
		return f, err
	}
	to, err := parseDay(q.Get("to"))
	if err != nil {
		return f, err
	}
	if !to.IsZero() {
		// to is inclusive of the whole day
		f.To = to.AddDate(0, 0, 1)
	}
	if f.Page, err = parseInt(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = parseInt(q.Get("page_size"), "page_size"); err != nil {
		return f, err
	}
	return f, nil
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return shared.ParseDate(raw)
}

func parseInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", shared.ErrValidation, name, raw)
	}
	return v, nil
}

package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/loomledger/loomledger/internal/audit"
	"github.com/loomledger/loomledger/internal/contractors"
	"github.com/loomledger/loomledger/internal/export"
	"github.com/loomledger/loomledger/internal/observability"
	"github.com/loomledger/loomledger/internal/orders"
	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/platform/httpx"
	"github.com/loomledger/loomledger/internal/reports"
	"github.com/loomledger/loomledger/internal/stock"
	"github.com/loomledger/loomledger/jobs"
)

// Pinger reports dependency health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	DB      Pinger

	StockHandler       *stock.Handler
	ContractorsHandler *contractors.Handler
	PaymentsHandler    *payments.Handler
	OrdersHandler      *orders.Handler
	ReportsHandler     *reports.Handler
	ExportHandler      *export.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with loomledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				params.Logger.Warn("health check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.StockHandler != nil {
			params.StockHandler.MountRoutes(r)
		}
		if params.ContractorsHandler != nil {
			params.ContractorsHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountRoutes(r)
		}
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
		}
		if params.ReportsHandler != nil {
			params.ReportsHandler.MountRoutes(r)
		}
		if params.ExportHandler != nil {
			params.ExportHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

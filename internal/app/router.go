package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/expenseflow/internal/audit/http"
	"github.com/odyssey-erp/expenseflow/internal/observability"
	"github.com/odyssey-erp/expenseflow/internal/platform/httpx"
	"github.com/odyssey-erp/expenseflow/internal/workflow"
	"github.com/odyssey-erp/expenseflow/jobs"
)

// ReadinessCheck probes one dependency for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	ExpenseHandler *workflow.Handler
	AuditHandler   *audithttp.Handler
	JobHandler     *jobs.Handler
	Readiness      []ReadinessCheck
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with expenseflow defaults.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(params.Readiness, params.Logger))

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	hash := ""
	if params.Config != nil {
		hash = params.Config.APITokenHash
	}
	if params.ExpenseHandler != nil {
		r.Route("/api/expenses", func(r chi.Router) {
			r.Use(BearerAuth(hash, params.Logger))
			params.ExpenseHandler.MountRoutes(r)
		})
	}
	if params.AuditHandler != nil {
		r.Route("/api/audit", func(r chi.Router) {
			r.Use(BearerAuth(hash, params.Logger))
			params.AuditHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readyHandler(checks []ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", check.Name), slog.Any("error", err))
				result[check.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			result[check.Name] = "ok"
		}
		httpx.JSON(w, status, result)
	}
}

package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fleetlease/fleetlease/internal/commissions"
	"github.com/fleetlease/fleetlease/internal/leasing/schedules"
	"github.com/fleetlease/fleetlease/internal/ledger/accounts"
	"github.com/fleetlease/fleetlease/internal/ledger/journals"
	"github.com/fleetlease/fleetlease/internal/observability"
	"github.com/fleetlease/fleetlease/internal/payments"
	"github.com/fleetlease/fleetlease/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AccountsHandler    *accounts.Handler
	JournalsHandler    *journals.Handler
	SchedulesHandler   *schedules.Handler
	PaymentsHandler    *payments.Handler
	CommissionsHandler *commissions.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if params.AccountsHandler != nil {
			api.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			api.Route("/journal-entries", params.JournalsHandler.MountRoutes)
		}
		if params.SchedulesHandler != nil {
			api.Route("/schedules", params.SchedulesHandler.MountRoutes)
			api.Route("/lease-agreements", params.SchedulesHandler.MountAgreementRoutes)
		}
		if params.PaymentsHandler != nil {
			api.Route("/payments", params.PaymentsHandler.MountRoutes)
		}
		if params.CommissionsHandler != nil {
			api.Route("/commissions", params.CommissionsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

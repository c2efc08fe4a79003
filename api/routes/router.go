package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/colmadogutierrez/debtbook/api/controllers"
	"github.com/colmadogutierrez/debtbook/api/middleware"
	"github.com/colmadogutierrez/debtbook/internal/clients"
	"github.com/colmadogutierrez/debtbook/pkg/config"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

// RouterParams carries the services mounted by NewRouter. Nil services are
// reported as internal errors by their handlers.
type RouterParams struct {
	Storage  controllers.Pinger
	Clients  clients.Service
	Ledger   controllers.LedgerPort
	Session  controllers.SessionService
	Backup   controllers.BackupRunner
	Restore  controllers.RestoreRunner
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Storage))
	})

	if params.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	var summary controllers.SummaryReader = params.Ledger

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.API.KeyHash, logg))

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", controllers.ClientList(params.Clients, logg))
			r.Post("/", controllers.ClientCreate(params.Clients, logg))
			r.Get("/summary", controllers.ClientSummary(params.Clients, logg))
			r.Route("/{clientId}", func(r chi.Router) {
				r.Get("/", controllers.ClientDetail(params.Clients, logg))
				r.Patch("/", controllers.ClientUpdate(params.Clients, logg))
				r.Delete("/", controllers.ClientDelete(params.Clients, logg))
				r.Post("/transactions", controllers.ClientRecordTransaction(params.Clients, logg))
				r.Delete("/transactions", controllers.ClientDeleteTransaction(params.Clients, logg))
			})
		})

		r.Get("/ledger", controllers.LedgerExport(params.Ledger, logg))
		r.Put("/ledger", controllers.LedgerImport(params.Ledger, logg))

		r.Post("/backups", controllers.BackupNow(params.Backup, logg))
		r.Post("/backups/restore", controllers.BackupRestore(params.Restore, summary, logg))

		r.Route("/auth/session", func(r chi.Router) {
			r.Get("/", controllers.SessionFetch(params.Session, logg))
			r.Post("/", controllers.SessionCreate(params.Session, logg))
			r.Delete("/", controllers.SessionDelete(params.Session, logg))
		})
	})

	return r
}

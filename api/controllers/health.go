package controllers

import (
	"context"
	"net/http"

	"github.com/colmadogutierrez/debtbook/api/responses"
	"github.com/colmadogutierrez/debtbook/pkg/config"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Debtbook-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the persistence backend.
func HealthReady(cfg *config.Config, logg *logger.Logger, store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Debtbook-Env", cfg.App.Env)
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storage not ready").
					WithDetails(map[string]any{"storage": cfg.Storage.Driver}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready", "storage": cfg.Storage.Driver})
	}
}

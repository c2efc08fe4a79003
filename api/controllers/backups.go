package controllers

import (
	"context"
	"net/http"

	"github.com/colmadogutierrez/debtbook/api/responses"
	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/enums"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

type BackupRunner interface {
	Backup(ctx context.Context) (enums.BackupOutcome, error)
}

type RestoreRunner interface {
	Restore(ctx context.Context) error
}

type SummaryReader interface {
	Summary() ledger.Summary
}

// BackupNow runs one backup pass and reports how it ended.
func BackupNow(runner BackupRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "backup unavailable"))
			return
		}
		outcome, err := runner.Backup(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}

// BackupRestore overwrites the ledger with today's remote snapshot.
func BackupRestore(runner RestoreRunner, summary SummaryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil || summary == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "restore unavailable"))
			return
		}
		if err := runner.Restore(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary.Summary())
	}
}

package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/colmadogutierrez/debtbook/api/responses"
	"github.com/colmadogutierrez/debtbook/internal/ledger"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

const maxLedgerBytes = 10 << 20

// LedgerPort is the slice of the ledger store used for export and import.
type LedgerPort interface {
	Snapshot() ([]byte, error)
	ReplaceAllJSON(ctx context.Context, raw []byte) error
	Summary() ledger.Summary
}

// LedgerExport returns the whole ledger in its persisted form.
func LedgerExport(store LedgerPort, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		snapshot, err := store.Snapshot()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialise ledger"))
			return
		}
		responses.WriteSuccess(w, json.RawMessage(snapshot))
	}
}

// LedgerImport replaces the whole ledger with the request body. An invalid
// document is rejected and the ledger is left as it was.
func LedgerImport(store LedgerPort, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLedgerBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read ledger document"))
			return
		}
		if err := store.ReplaceAllJSON(r.Context(), raw); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store.Summary())
	}
}

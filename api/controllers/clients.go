package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/colmadogutierrez/debtbook/api/responses"
	"github.com/colmadogutierrez/debtbook/api/validators"
	"github.com/colmadogutierrez/debtbook/internal/clients"
	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/enums"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

const (
	maxSearchQuery = 64
	maxListLimit   = 100
)

type createClientRequest struct {
	Name        string           `json:"name" validate:"required"`
	Phone       string           `json:"phone"`
	InitialDebt *decimal.Decimal `json:"initial_debt"`
}

func (r createClientRequest) toInput() clients.CreateClientInput {
	input := clients.CreateClientInput{Name: r.Name, Phone: r.Phone}
	if r.InitialDebt != nil {
		input.InitialDebt = *r.InitialDebt
	}
	return input
}

type updateClientRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

type recordTransactionRequest struct {
	Type   string          `json:"type" validate:"required,oneof=Deuda Abono"`
	Amount decimal.Decimal `json:"amount"`
}

type deleteTransactionRequest struct {
	Date   string          `json:"date" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type" validate:"required,oneof=Deuda Abono"`
}

// ClientList searches by name when q is set, otherwise lists the top debtors.
func ClientList(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}
		limit, err := validators.ParseLimit(r, clients.DefaultListLimit, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := validators.SanitizeQuery(r.URL.Query().Get("q"), maxSearchQuery)
		responses.WriteSuccess(w, svc.List(query, limit))
	}
}

func ClientSummary(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Summary())
	}
}

func ClientCreate(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}
		var payload createClientRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.Create(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func ClientDetail(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}
		client, err := svc.Get(chi.URLParam(r, "clientId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, client)
	}
}

func ClientUpdate(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}
		var payload updateClientRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Name == nil && payload.Phone == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "name or phone is required"))
			return
		}
		updated, err := svc.Update(r.Context(), chi.URLParam(r, "clientId"), clients.UpdateClientInput{Name: payload.Name, Phone: payload.Phone})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// ClientDelete removes a client whose debt is settled.
func ClientDelete(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}
		if err := svc.Delete(r.Context(), chi.URLParam(r, "clientId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// ClientRecordTransaction adds a Deuda or Abono dated now.
func ClientRecordTransaction(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}
		var payload recordTransactionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.RecordTransaction(r.Context(), chi.URLParam(r, "clientId"), clients.RecordTransactionInput{
			Type:   enums.TransactionType(payload.Type),
			Amount: payload.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, updated)
	}
}

// ClientDeleteTransaction removes the first transaction equal to the body.
func ClientDeleteTransaction(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client service unavailable"))
			return
		}
		var payload deleteTransactionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tx := ledger.Transaction{
			Date:   strings.TrimSpace(payload.Date),
			Amount: payload.Amount,
			Type:   enums.TransactionType(payload.Type),
		}
		updated, err := svc.DeleteTransaction(r.Context(), chi.URLParam(r, "clientId"), tx)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

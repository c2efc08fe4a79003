package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/colmadogutierrez/debtbook/internal/clients"
	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/kv"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestClients(t *testing.T) (clients.Service, *ledger.Store) {
	t.Helper()
	seq := 0
	store, err := ledger.NewStore(ledger.StoreParams{
		KV:     kv.NewMemoryStore(),
		Logger: logger.Nop(),
		Clock:  func() time.Time { return testNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("client-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	svc, err := clients.NewService(clients.ServiceParams{
		Ledger: store,
		Logger: logger.Nop(),
		Clock:  func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func withRouteParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type clientEnvelope struct {
	Data struct {
		ID           string      `json:"id"`
		Name         string      `json:"name"`
		Phone        string      `json:"phone"`
		Debt         json.Number `json:"debt"`
		Transactions []struct {
			Date   string      `json:"date"`
			Amount json.Number `json:"amount"`
			Type   string      `json:"type"`
		} `json:"transactions"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeClient(t *testing.T, resp *httptest.ResponseRecorder) clientEnvelope {
	t.Helper()
	var envelope clientEnvelope
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode client: %v", err)
	}
	return envelope
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal: %v", err)
	}
	return d
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var envelope errorEnvelope
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope
}

func TestClientCreate(t *testing.T) {
	svc, _ := newTestClients(t)

	req := jsonRequest(t, http.MethodPost, "/", map[string]any{"name": "  juan   perez", "phone": "809-555-1234", "initial_debt": "150.50"})
	resp := httptest.NewRecorder()
	ClientCreate(svc, logger.Nop()).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	got := decodeClient(t, resp)
	if got.Data.Name != "Juan Perez" {
		t.Fatalf("unexpected name %q", got.Data.Name)
	}
	if got.Data.Debt.String() != "150.5" {
		t.Fatalf("unexpected debt %s", got.Data.Debt)
	}
	if len(got.Data.Transactions) != 1 || got.Data.Transactions[0].Type != "Deuda" {
		t.Fatalf("expected one Deuda transaction, got %+v", got.Data.Transactions)
	}
}

func TestClientCreateRejectsMissingName(t *testing.T) {
	svc, _ := newTestClients(t)

	resp := httptest.NewRecorder()
	ClientCreate(svc, logger.Nop()).ServeHTTP(resp, jsonRequest(t, http.MethodPost, "/", map[string]any{"phone": "809-555-1234"}))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := decodeError(t, resp).Error.Code; code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestClientCreateDuplicateName(t *testing.T) {
	svc, _ := newTestClients(t)
	handler := ClientCreate(svc, logger.Nop())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, jsonRequest(t, http.MethodPost, "/", map[string]any{"name": "Maria"}))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, jsonRequest(t, http.MethodPost, "/", map[string]any{"name": "maria"}))
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", second.Code)
	}
}

func TestClientDetailNotFound(t *testing.T) {
	svc, _ := newTestClients(t)

	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/", nil), "clientId", "missing")
	resp := httptest.NewRecorder()
	ClientDetail(svc, logger.Nop()).ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestClientUpdateRequiresAField(t *testing.T) {
	svc, _ := newTestClients(t)
	created, err := svc.Create(context.Background(), clients.CreateClientInput{Name: "Pedro"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := withRouteParam(jsonRequest(t, http.MethodPatch, "/", map[string]any{}), "clientId", created.ID)
	resp := httptest.NewRecorder()
	ClientUpdate(svc, logger.Nop()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	req = withRouteParam(jsonRequest(t, http.MethodPatch, "/", map[string]any{"phone": "809-000-1111"}), "clientId", created.ID)
	resp = httptest.NewRecorder()
	ClientUpdate(svc, logger.Nop()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got := decodeClient(t, resp); got.Data.Phone != "809-000-1111" || got.Data.Name != "Pedro" {
		t.Fatalf("unexpected client %+v", got.Data)
	}
}

func TestClientTransactionsFlow(t *testing.T) {
	svc, _ := newTestClients(t)
	created, err := svc.Create(context.Background(), clients.CreateClientInput{Name: "Rosa"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	record := ClientRecordTransaction(svc, logger.Nop())
	resp := httptest.NewRecorder()
	record.ServeHTTP(resp, withRouteParam(jsonRequest(t, http.MethodPost, "/", map[string]any{"type": "Deuda", "amount": 200}), "clientId", created.ID))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	record.ServeHTTP(resp, withRouteParam(jsonRequest(t, http.MethodPost, "/", map[string]any{"type": "Abono", "amount": 50}), "clientId", created.ID))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if got := decodeClient(t, resp); got.Data.Debt.String() != "150" {
		t.Fatalf("expected debt 150 got %s", got.Data.Debt)
	}

	resp = httptest.NewRecorder()
	record.ServeHTTP(resp, withRouteParam(jsonRequest(t, http.MethodPost, "/", map[string]any{"type": "Prestamo", "amount": 50}), "clientId", created.ID))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type got %d", resp.Code)
	}

	remove := ClientDeleteTransaction(svc, logger.Nop())
	resp = httptest.NewRecorder()
	body := map[string]any{"date": testNow.Format(ledger.DateLayout), "amount": "50", "type": "Abono"}
	remove.ServeHTTP(resp, withRouteParam(jsonRequest(t, http.MethodDelete, "/", body), "clientId", created.ID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got := decodeClient(t, resp); got.Data.Debt.String() != "200" {
		t.Fatalf("expected debt 200 got %s", got.Data.Debt)
	}
}

func TestClientDeleteWithDebtIsRejected(t *testing.T) {
	svc, _ := newTestClients(t)
	created, err := svc.Create(context.Background(), clients.CreateClientInput{Name: "Luis"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.RecordTransaction(context.Background(), created.ID, clients.RecordTransactionInput{Type: "Deuda", Amount: mustDecimal(t, "10")}); err != nil {
		t.Fatalf("record: %v", err)
	}

	resp := httptest.NewRecorder()
	ClientDelete(svc, logger.Nop()).ServeHTTP(resp, withRouteParam(httptest.NewRequest(http.MethodDelete, "/", nil), "clientId", created.ID))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := decodeError(t, resp).Error.Code; code != "STATE_CONFLICT" {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestClientListAndSummary(t *testing.T) {
	svc, _ := newTestClients(t)
	for _, name := range []string{"Ana", "Andres", "Beto"} {
		created, err := svc.Create(context.Background(), clients.CreateClientInput{Name: name})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := svc.RecordTransaction(context.Background(), created.ID, clients.RecordTransactionInput{Type: "Deuda", Amount: mustDecimal(t, "10")}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	resp := httptest.NewRecorder()
	ClientList(svc, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/?q=an&limit=5", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var list struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 2 {
		t.Fatalf("expected 2 matches got %d", len(list.Data))
	}

	resp = httptest.NewRecorder()
	ClientList(svc, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/?limit=abc", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	ClientSummary(svc, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestClientHandlersWithoutService(t *testing.T) {
	resp := httptest.NewRecorder()
	ClientSummary(nil, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

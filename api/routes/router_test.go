package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colmadogutierrez/debtbook/internal/clients"
	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/config"
	"github.com/colmadogutierrez/debtbook/pkg/kv"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/metrics"
	"github.com/colmadogutierrez/debtbook/pkg/security"
)

func newTestRouter(t *testing.T, keyHash string) http.Handler {
	t.Helper()
	seq := 0
	store, err := ledger.NewStore(ledger.StoreParams{
		KV:     kv.NewMemoryStore(),
		Logger: logger.Nop(),
		Clock:  func() time.Time { return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("client-%d", seq)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	svc, err := clients.NewService(clients.ServiceParams{Ledger: store, Logger: logger.Nop()})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.NewBackupMetrics(reg)

	cfg := &config.Config{
		App:     config.AppConfig{Env: "test"},
		Storage: config.StorageConfig{Driver: config.StorageDriverSQLite},
		API:     config.APIConfig{KeyHash: keyHash, CORSOrigins: []string{"http://localhost:3000"}},
	}
	return NewRouter(cfg, logger.Nop(), RouterParams{
		Storage:  kv.NewMemoryStore(),
		Clients:  svc,
		Ledger:   store,
		Gatherer: reg,
	})
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, "")

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"), path)
	}
}

func TestRouterClientRoutes(t *testing.T) {
	router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader(`{"name":"ana lopez","initial_debt":20}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"client-1"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clients/client-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ana Lopez")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clients/summary", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "client-1")
}

func TestRouterUnwiredServicesFailClosed(t *testing.T) {
	router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backups", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouterRequiresAPIKeyWhenConfigured(t *testing.T) {
	hash, err := security.HashAPIKey("shop-key", config.APIConfig{ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32})
	require.NoError(t, err)
	router := newTestRouter(t, hash)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil)
	req.Header.Set("Authorization", "Bearer shop-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/observability"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/jobs"
)

func newTestServer(t *testing.T, cfg *Config) (http.Handler, *observability.Metrics) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	rt, err := OpenRuntime(context.Background(), &Config{StoreDriver: StoreMemory, RedisAddr: "127.0.0.1:1"}, logger)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	require.Nil(t, rt.Redis)
	require.Nil(t, rt.Locker(0))

	settings, err := cfg.ProcurementSettings()
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	svc := procurement.NewService(rt.Backend, settings, procurement.Dependencies{Metrics: metrics, Logger: logger})
	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurement.NewHandler(logger, svc),
		JobHandler:         jobs.NewHandler(nil, logger),
		Metrics:            metrics,
	}), metrics
}

func testConfig() *Config {
	return &Config{AppEnv: "test", Currency: "BRL", DefaultTaxRate: "16", RateLimitPerMinute: 100}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.TenantHeader, "acme")
	req.Header.Set(shared.ActorIDHeader, "u-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterServesAPIAndOperationalEndpoints(t *testing.T) {
	h, _ := newTestServer(t, testConfig())

	rec := do(h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(h, http.MethodPost, APIPrefix+"/requisitions", `{"number":"REQ-1","justification":"Chairs","items":[{"description":"Chair","quantity":4,"unit_price":15000}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(h, http.MethodGet, "/jobs/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `odyssey_procurement_transitions_total{document="requisition",event="create",outcome="ok"} 1`)
	require.Contains(t, body, `odyssey_http_requests_total{code="201",route="/api/v1/procurement/requisitions`)
}

func TestRouterRateLimitsPerTenant(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	h, _ := newTestServer(t, cfg)

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/healthz", "").Code)
}

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/observability"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

func newEcho(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := config.Config{Observability: config.Observability{
		ServiceName:     "tableside",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
	}}
	lc := fxtest.NewLifecycle(t)
	obs, err := observability.NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)
	return NewEcho(cfg, obs, zap.NewNop())
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEcho(t)

	rec := serve(e, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoutesUseTheEnvelope(t *testing.T) {
	e := newEcho(t)

	rec := serve(e, http.MethodGet, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"kind":"not_found","message":"Not Found"}}`, rec.Body.String())
}

func TestEscapedErrorsAndPanics(t *testing.T) {
	e := newEcho(t)
	e.GET("/boom", func(echo.Context) error { return errorbank.Conflict("table busy") })
	e.GET("/panic", func(echo.Context) error { panic("kaboom") })

	rec := serve(e, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"conflict"`)

	rec = serve(e, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"internal"`)
}

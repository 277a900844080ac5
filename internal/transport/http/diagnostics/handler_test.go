package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/backend"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
)

type downBackend struct {
	store.Backend
}

func (downBackend) Ping(context.Context) error { return errors.New("dial tcp: connection refused") }

func check(t *testing.T, b store.Backend, info backend.Info) map[string]any {
	t.Helper()
	e := echo.New()
	Register(e, NewHandler(b, info, zap.NewNop()))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics/backend", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

func TestReachableBackend(t *testing.T) {
	s, err := local.Open()
	require.NoError(t, err)

	data := check(t, s, backend.Info{Driver: "local", Source: backend.SourceLocal})
	assert.Equal(t, true, data["reachable"])
	assert.NotContains(t, data, "error")
	assert.Equal(t, "local", data["backend"].(map[string]any)["driver"])
}

func TestUnreachableBackendIsReportedNotFailed(t *testing.T) {
	data := check(t, downBackend{}, backend.Info{Driver: "redis", Source: backend.SourceEnv, Remote: true})
	assert.Equal(t, false, data["reachable"])
	assert.Contains(t, data["error"], "connection refused")
}

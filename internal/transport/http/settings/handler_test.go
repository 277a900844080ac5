package settings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/backend"
	"github.com/Additional-Code/tableside/internal/settings"
	"github.com/Additional-Code/tableside/internal/store/local"
)

type view struct {
	Saved    bool `json:"saved"`
	Settings *struct {
		Driver string `json:"driver"`
		APIKey string `json:"apiKey"`
	} `json:"settings"`
	Active          backend.Info `json:"active"`
	RestartRequired bool         `json:"restartRequired"`
}

func newServer(t *testing.T, active backend.Info) *echo.Echo {
	t.Helper()
	localStore, err := local.Open()
	require.NoError(t, err)
	e := echo.New()
	Register(e, NewHandler(settings.New(localStore, nil), active))
	return e
}

func do(t *testing.T, e *echo.Echo, method, body string) (int, view, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, "/settings/backend", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env struct {
		Data  view           `json:"data"`
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env.Data, env.Error
}

func TestSaveRedactsAndRequiresRestart(t *testing.T) {
	e := newServer(t, backend.Info{Driver: "local", Source: backend.SourceLocal})

	code, v, _ := do(t, e, http.MethodGet, "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, v.Saved)
	assert.Nil(t, v.Settings)
	assert.Equal(t, "local", v.Active.Driver)

	code, v, _ = do(t, e, http.MethodPut,
		`{"driver":"Redis","apiKey":"s3cret-key-1234","projectId":"bar","endpoint":"localhost:6379"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, v.Saved)
	assert.True(t, v.RestartRequired)
	require.NotNil(t, v.Settings)
	assert.Equal(t, "redis", v.Settings.Driver)
	assert.Equal(t, "***********1234", v.Settings.APIKey)

	code, v, _ = do(t, e, http.MethodGet, "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, v.Saved)
	assert.Equal(t, "***********1234", v.Settings.APIKey)
}

func TestSaveRejectsIncompleteForms(t *testing.T) {
	e := newServer(t, backend.Info{Driver: "local", Source: backend.SourceLocal})

	code, _, errBody := do(t, e, http.MethodPut, `{"driver":"redis","apiKey":"","projectId":"bar","endpoint":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, map[string]any{"apiKey": "required"}, errBody["details"])

	code, _, errBody = do(t, e, http.MethodPut, `{"driver":"mongo","apiKey":"k","projectId":"bar","endpoint":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", errBody["kind"])
}

func TestClearReportsRestartWhenSettingsAreActive(t *testing.T) {
	e := newServer(t, backend.Info{Driver: "redis", Source: backend.SourceSettings, Remote: true})

	code, _, _ := do(t, e, http.MethodPut, `{"apiKey":"s3cret-key-1234","projectId":"bar","endpoint":"localhost:6379"}`)
	require.Equal(t, http.StatusOK, code)

	code, v, _ := do(t, e, http.MethodDelete, "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, v.Saved)
	assert.True(t, v.RestartRequired)

	code, v, _ = do(t, e, http.MethodGet, "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, v.Saved)
}

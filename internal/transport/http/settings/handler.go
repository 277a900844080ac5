package settings

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/backend"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	"github.com/Additional-Code/tableside/internal/settings"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/settings")

// Handler serves the operator form for remote backend credentials.
type Handler struct {
	store  *settings.Store
	active backend.Info
}

// NewHandler constructs a settings Handler.
func NewHandler(store *settings.Store, active backend.Info) *Handler {
	return &Handler{store: store, active: active}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/settings")
	g.GET("/backend", h.get)
	g.PUT("/backend", h.save)
	g.DELETE("/backend", h.clear)
}

func (h *Handler) view(saved bool, remote config.Remote) dto.BackendSettingsResponse {
	resp := dto.BackendSettingsResponse{Saved: saved, Active: h.active}
	if saved {
		redacted := settings.Redact(remote)
		resp.Settings = &redacted
	}
	return resp
}

func (h *Handler) get(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "settings.get")
	defer span.End()

	remote, saved, err := h.store.Load(ctx)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithData(h.view(saved, remote)).Build()
}

func (h *Handler) save(c echo.Context) error {
	b := response.New(c)

	var payload dto.BackendSettingsRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "settings.save",
		trace.WithAttributes(attribute.String("settings.driver", payload.Driver)))
	defer span.End()

	saved, err := h.store.Save(ctx, payload.Remote())
	if err != nil {
		return b.WithError(err).Build()
	}
	resp := h.view(true, saved)
	resp.RestartRequired = true
	return b.WithData(resp).Build()
}

func (h *Handler) clear(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "settings.clear")
	defer span.End()

	if err := h.store.Clear(ctx); err != nil {
		return response.New(c).WithError(err).Build()
	}
	resp := h.view(false, config.Remote{})
	resp.RestartRequired = h.active.Source == backend.SourceSettings
	return response.New(c).WithData(resp).Build()
}

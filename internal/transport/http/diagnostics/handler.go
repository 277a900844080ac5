package diagnostics

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/backend"
	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	"github.com/Additional-Code/tableside/internal/store"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/diagnostics")

const pingTimeout = 3 * time.Second

// Handler reports which backend is active and whether it answers.
type Handler struct {
	backend store.Backend
	info    backend.Info
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler constructs a diagnostics Handler.
func NewHandler(b store.Backend, info backend.Info, logger *zap.Logger) *Handler {
	return &Handler{backend: b, info: info, logger: logger, now: time.Now}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/diagnostics/backend", h.backendStatus)
}

// backendStatus always answers 200; an unreachable backend is reported in
// the body so the status screen can render it.
func (h *Handler) backendStatus(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "diagnostics.backend",
		trace.WithAttributes(attribute.String("backend.driver", h.info.Driver)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	started := h.now()
	err := h.backend.Ping(ctx)
	resp := dto.DiagnosticsResponse{
		Backend:   h.info,
		Reachable: err == nil,
		LatencyMS: h.now().Sub(started).Milliseconds(),
		CheckedAt: started,
	}
	if err != nil {
		span.RecordError(err)
		resp.Error = err.Error()
		h.logger.Warn("backend ping failed", zap.String("driver", h.info.Driver), zap.Error(err))
	}
	return response.New(c).WithData(resp).Build()
}

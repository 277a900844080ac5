package alert

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	orderservice "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/internal/service/report"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/alert")

const keepAliveInterval = 15 * time.Second

// Handler streams new-order alerts to connected staff screens.
type Handler struct {
	hub       *report.Hub
	orders    *orderservice.Service
	keepAlive time.Duration
}

// NewHandler constructs an alert Handler.
func NewHandler(hub *report.Hub, orders *orderservice.Service) *Handler {
	return &Handler{hub: hub, orders: orders, keepAlive: keepAliveInterval}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/alerts")
	g.GET("/stream", h.stream)
	g.GET("/pending", h.pending)
}

// stream writes each alert as a server-sent event until the client leaves.
// Alerts raised while nobody listens are lost.
func (h *Handler) stream(c echo.Context) error {
	ctx := c.Request().Context()
	alerts, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-alerts:
			if !ok {
				return nil
			}
			body, err := json.Marshal(a)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(res, "event: alert\ndata: %s\n\n", body); err != nil {
				return nil
			}
			res.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// pending reports how many live orders wait for the kitchen, so a screen
// that just connected can show a baseline.
func (h *Handler) pending(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "alerts.pending")
	defer span.End()

	orders, err := h.orders.List(ctx)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithData(map[string]int{
		"pending":   report.PendingCount(orders),
		"listeners": h.hub.Listeners(),
	}).Build()
}

package order

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	service "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.POST("", h.create)
	g.PATCH("/:id/status", h.updateStatus)
}

type listQuery struct {
	Table  string `query:"table"`
	Active bool   `query:"active"`
}

// list returns live orders newest first, optionally for one table.
func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	var q listQuery
	if err := request.Bind(c, &q); err != nil {
		return b.WithError(err).Build()
	}
	var table entity.TableID
	if q.Table != "" {
		id, err := entity.ParseTableID(q.Table)
		if err != nil {
			return b.WithError(errorbank.Validation("invalid table id", errorbank.WithCause(err), errorbank.WithDetail("table", q.Table))).Build()
		}
		table = id
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list", trace.WithAttributes(attribute.Int("order.table_id", int(table))))
	defer span.End()

	orders, err := h.svc.List(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	switch {
	case table != 0 && q.Active:
		orders = service.ActiveForTable(orders, table)
	case table != 0:
		orders = service.FilterByTable(orders, table)
	}
	return b.WithData(dto.NewOrderResponses(orders)).WithCount(len(orders)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.svc.Get(ctx, id)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithData(dto.NewOrderResponse(o)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(
		attribute.Int("order.table_id", int(payload.TableID)),
		attribute.Int("order.lines", len(payload.Items)),
	)
	defer span.End()

	o, err := h.svc.Create(ctx, payload.TableID, payload.Lines(), payload.Observation)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.NewOrderResponse(o)).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload dto.UpdateStatusRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("order.status", string(payload.Status))))
	defer span.End()

	o, err := h.svc.SetStatus(ctx, id, payload.Status)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewOrderResponse(o)).Build()
}

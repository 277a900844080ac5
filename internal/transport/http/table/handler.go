package table

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/collaborator/qrcode"
	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	service "github.com/Additional-Code/tableside/internal/service/table"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/table")

// Handler exposes table billing endpoints over HTTP.
type Handler struct {
	svc *service.Service
	qr  *qrcode.Generator
}

// NewHandler constructs a table Handler.
func NewHandler(svc *service.Service, qr *qrcode.Generator) *Handler {
	return &Handler{svc: svc, qr: qr}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/tables")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/bill", h.bill)
	g.GET("/:id/receipt", h.receipt)
	g.GET("/:id/qrcode", h.qrCode)
	g.POST("/:id/close-request", h.requestClose)
	g.POST("/:id/finalize", h.finalize)
	g.POST("/:id/force-clear", h.forceClear)
}

func tableID(c echo.Context) (entity.TableID, error) {
	id, err := entity.ParseTableID(c.Param("id"))
	if err != nil {
		return 0, errorbank.Validation("table id must be a positive integer", errorbank.WithCause(err), errorbank.WithDetail("id", c.Param("id")))
	}
	return id, nil
}

func (h *Handler) list(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "tables.list")
	defer span.End()

	sessions, err := h.svc.List(ctx)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithData(dto.NewTableResponses(sessions)).WithCount(len(sessions)).Build()
}

func (h *Handler) get(c echo.Context) error {
	b := response.New(c)
	id, err := tableID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "tables.get", trace.WithAttributes(attribute.Int("table.id", int(id))))
	defer span.End()

	session, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewTableResponse(session)).Build()
}

func (h *Handler) bill(c echo.Context) error {
	b := response.New(c)
	id, err := tableID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "tables.bill", trace.WithAttributes(attribute.Int("table.id", int(id))))
	defer span.End()

	bill, err := h.svc.Bill(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewBillResponse(bill)).Build()
}

func (h *Handler) receipt(c echo.Context) error {
	b := response.New(c)
	id, err := tableID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "tables.receipt", trace.WithAttributes(attribute.Int("table.id", int(id))))
	defer span.End()

	receipt, err := h.svc.Receipt(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewReceiptResponse(receipt)).Build()
}

// qrCode returns the client link for a table. The base query parameter
// overrides the configured public URL.
func (h *Handler) qrCode(c echo.Context) error {
	b := response.New(c)
	id, err := tableID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(h.qr.Code(c.QueryParam("base"), id)).Build()
}

func (h *Handler) requestClose(c echo.Context) error {
	b := response.New(c)
	id, err := tableID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.CloseRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "tables.requestClose",
		trace.WithAttributes(attribute.Int("table.id", int(id)), attribute.String("table.payment_method", string(payload.PaymentMethod))))
	defer span.End()

	session, err := h.svc.RequestClose(ctx, id, payload.PaymentMethod)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewTableResponse(session)).Build()
}

func (h *Handler) finalize(c echo.Context) error {
	b := response.New(c)
	id, err := tableID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "tables.finalize", trace.WithAttributes(attribute.Int("table.id", int(id))))
	defer span.End()

	outcome, err := h.svc.Finalize(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	if outcome.Warning != "" {
		b.WithMeta("warning", outcome.Warning)
	}
	return b.WithData(outcome).Build()
}

func (h *Handler) forceClear(c echo.Context) error {
	b := response.New(c)
	id, err := tableID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "tables.forceClear", trace.WithAttributes(attribute.Int("table.id", int(id))))
	defer span.End()

	outcome, err := h.svc.ForceClear(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(outcome).Build()
}

package product

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	service "github.com/Additional-Code/tableside/internal/service/catalog"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/product")

// Handler exposes catalog endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a product Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/products")
	g.GET("", h.list)
	g.GET("/available", h.available)
	g.GET("/:id", h.getByID)
	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "products.list")
	defer span.End()

	products, err := h.svc.List(ctx)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithData(dto.NewProductResponses(products)).WithCount(len(products)).Build()
}

func (h *Handler) available(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "products.available")
	defer span.End()

	products, err := h.svc.ListAvailable(ctx)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithData(dto.NewProductResponses(products)).WithCount(len(products)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "products.getByID", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	p, err := h.svc.Get(ctx, id)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithData(dto.NewProductResponse(p)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.ProductRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "products.create", trace.WithAttributes(attribute.String("product.name", payload.Name)))
	defer span.End()

	saved, err := h.svc.Save(ctx, payload.Entity(""))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.NewProductResponse(saved)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload dto.ProductRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "products.update", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	saved, err := h.svc.Save(ctx, payload.Entity(id))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewProductResponse(saved)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "products.delete", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	return response.New(c).WithError(h.svc.Delete(ctx, id)).WithStatus(http.StatusNoContent).Build()
}

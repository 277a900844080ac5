package report

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	service "github.com/Additional-Code/tableside/internal/service/report"
	tableservice "github.com/Additional-Code/tableside/internal/service/table"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/report")

const defaultTopLimit = 10

// Handler exposes reporting endpoints over HTTP.
type Handler struct {
	reports *service.Service
	tables  *tableservice.Service
	loc     *time.Location
}

// NewHandler constructs a report Handler. Dates are read in the server's
// local zone.
func NewHandler(reports *service.Service, tables *tableservice.Service) *Handler {
	return &Handler{reports: reports, tables: tables, loc: time.Local}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/reports")
	g.GET("/history", h.history)
	g.GET("/stats", h.stats)
	g.GET("/top-products", h.topProducts)
	g.GET("/narrative", h.narrative)
}

func (h *Handler) dayRange(c echo.Context) (dto.RangeQuery, time.Time, time.Time, error) {
	var q dto.RangeQuery
	if err := request.Bind(c, &q); err != nil {
		return q, time.Time{}, time.Time{}, err
	}
	start, end, err := service.DayRange(q.From, q.To, h.loc)
	return q, start, end, err
}

func rangeAttributes(start, end time.Time) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("report.start", start.Format(time.RFC3339)),
		attribute.String("report.end", end.Format(time.RFC3339)),
	)
}

func (h *Handler) history(c echo.Context) error {
	b := response.New(c)
	_, start, end, err := h.dayRange(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "reports.history", rangeAttributes(start, end))
	defer span.End()

	records, err := h.tables.History(ctx, start, end)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewArchivedOrderResponses(records)).WithCount(len(records)).Build()
}

func (h *Handler) stats(c echo.Context) error {
	b := response.New(c)
	_, start, end, err := h.dayRange(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "reports.stats", rangeAttributes(start, end))
	defer span.End()

	stats, err := h.reports.Stats(ctx, start, end)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewStatsResponse(stats)).Build()
}

func (h *Handler) topProducts(c echo.Context) error {
	b := response.New(c)
	q, start, end, err := h.dayRange(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultTopLimit
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "reports.topProducts", rangeAttributes(start, end))
	defer span.End()

	top, err := h.reports.TopProducts(ctx, start, end, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewTopProductResponses(top)).Build()
}

func (h *Handler) narrative(c echo.Context) error {
	b := response.New(c)
	_, start, end, err := h.dayRange(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "reports.narrative", rangeAttributes(start, end))
	defer span.End()

	text, err := h.reports.Narrative(ctx, start, end)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NarrativeResponse{Start: start, End: end, Text: text}).Build()
}

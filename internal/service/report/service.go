package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/collaborator/textgen"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/codec"
	"github.com/Additional-Code/tableside/internal/repository/history"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/report")
	serviceMeter  = otel.Meter("github.com/Additional-Code/tableside/service/report")
)

// NoSalesMessage is the narrative for a range without archived sales.
const NoSalesMessage = "No sales data (finalized orders) for the selected period."

const dateLayout = "2006-01-02"

var errNotCacheable = errors.New("narrative not cacheable")

// Narrator writes a prose summary of sales data. It must not fail; problems
// are reported as user-facing text.
type Narrator interface {
	SalesReport(ctx context.Context, salesData any) string
}

// FinancialStats aggregates archived sales over a range.
type FinancialStats struct {
	Start         time.Time
	End           time.Time
	TotalRevenue  decimal.Decimal
	OrderCount    int
	AverageTicket decimal.Decimal
}

// TopProduct is one line of the best-sellers ranking.
type TopProduct struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Sale is the per-order shape handed to the narrator.
type Sale struct {
	Items []SaleItem    `json:"items"`
	Total codec.Decimal `json:"total"`
	Date  string        `json:"date"`
}

// SaleItem is one line of a Sale.
type SaleItem struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

// Service computes reports over the order history.
type Service struct {
	history  *history.Repository
	narrator Narrator
	cache    cache.Store
	ttl      time.Duration
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	History  *history.Repository
	Narrator Narrator
	Cache    cache.Store   `optional:"true"`
	CacheTTL time.Duration `name:"report_cache_ttl" optional:"true"`
	Logger   *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := p.Cache
	if c == nil {
		c = cache.Noop()
	}
	return &Service{
		history:  p.History,
		narrator: p.Narrator,
		cache:    c,
		ttl:      p.CacheTTL,
		logger:   logger,
	}
}

// DayRange expands two calendar dates (YYYY-MM-DD) into an inclusive range
// from the first instant of from to the last millisecond of to, in loc.
func DayRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(from), loc)
	if err != nil {
		return time.Time{}, time.Time{}, errorbank.Validation("invalid start date", errorbank.WithDetail("from", from))
	}
	endDay, err := time.ParseInLocation(dateLayout, strings.TrimSpace(to), loc)
	if err != nil {
		return time.Time{}, time.Time{}, errorbank.Validation("invalid end date", errorbank.WithDetail("to", to))
	}
	end := endDay.AddDate(0, 0, 1).Add(-time.Millisecond)
	if end.Before(start) {
		return time.Time{}, time.Time{}, errorbank.Validation("range end must not precede start")
	}
	return start, end, nil
}

func (s *Service) sales(ctx context.Context, start, end time.Time) ([]entity.ArchivedOrder, error) {
	if end.Before(start) {
		return nil, errorbank.Validation("range end must not precede start")
	}
	records, err := s.history.Range(ctx, start, end)
	if err != nil {
		if store.IsBackendError(err) {
			return nil, errorbank.Backend("failed to load history", errorbank.WithCause(err))
		}
		return nil, errorbank.Internal("failed to load history", errorbank.WithCause(err))
	}
	out := records[:0]
	for _, r := range records {
		if r.CountsAsRevenue() {
			out = append(out, r)
		}
	}
	return out, nil
}

// Stats sums archived revenue in [start, end]. Orders that were cancelled
// before archiving are excluded. AverageTicket is zero when nothing sold.
func (s *Service) Stats(ctx context.Context, start, end time.Time) (FinancialStats, error) {
	ctx, span := serviceTracer.Start(ctx, "ReportService.Stats")
	defer span.End()

	records, err := s.sales(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		return FinancialStats{}, err
	}
	stats := Aggregate(records)
	stats.Start, stats.End = start, end
	span.SetAttributes(attribute.Int("report.orders", stats.OrderCount))
	return stats, nil
}

// Aggregate computes revenue, count and average ticket for records.
func Aggregate(records []entity.ArchivedOrder) FinancialStats {
	revenue := decimal.Zero
	for _, r := range records {
		revenue = revenue.Add(r.Total)
	}
	stats := FinancialStats{TotalRevenue: revenue, OrderCount: len(records), AverageTicket: decimal.Zero}
	if stats.OrderCount > 0 {
		stats.AverageTicket = revenue.Div(decimal.NewFromInt(int64(stats.OrderCount)))
	}
	return stats
}

// TopProducts ranks items sold in [start, end] by quantity, then revenue.
func (s *Service) TopProducts(ctx context.Context, start, end time.Time, limit int) ([]TopProduct, error) {
	records, err := s.sales(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*TopProduct)
	for _, r := range records {
		for _, it := range r.Items {
			tp, ok := byName[it.Name]
			if !ok {
				tp = &TopProduct{Name: it.Name, Revenue: decimal.Zero}
				byName[it.Name] = tp
			}
			tp.Quantity += it.Quantity
			tp.Revenue = tp.Revenue.Add(it.Subtotal())
		}
	}
	out := make([]TopProduct, 0, len(byName))
	for _, tp := range byName {
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		if !out[i].Revenue.Equal(out[j].Revenue) {
			return out[i].Revenue.GreaterThan(out[j].Revenue)
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Narrative asks the narrator to summarise sales in [start, end]. Generated
// text is cached per range and sales fingerprint; fallback messages are not.
func (s *Service) Narrative(ctx context.Context, start, end time.Time) (string, error) {
	ctx, span := serviceTracer.Start(ctx, "ReportService.Narrative",
		trace.WithAttributes(attribute.String("report.start", start.Format(time.RFC3339)), attribute.String("report.end", end.Format(time.RFC3339))))
	defer span.End()

	records, err := s.sales(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if len(records) == 0 {
		return NoSalesMessage, nil
	}

	sales := SalesData(records)
	stats := Aggregate(records)
	key := fmt.Sprintf("narrative:%d:%d:%d:%s", start.UnixMilli(), end.UnixMilli(), stats.OrderCount, stats.TotalRevenue.StringFixed(2))

	var fallback string
	text, err := cache.Remember(ctx, s.cache, key, s.ttl, func(ctx context.Context) (string, error) {
		out := s.narrator.SalesReport(ctx, sales)
		if textgen.IsFallback(out) {
			fallback = out
			return "", errNotCacheable
		}
		return out, nil
	})
	if errors.Is(err, errNotCacheable) {
		return fallback, nil
	}
	if err != nil {
		return "", errorbank.Internal("failed to build narrative", errorbank.WithCause(err))
	}
	s.logger.Info("narrative report generated", zap.Int("orders", stats.OrderCount))
	return text, nil
}

// SalesData reshapes archived orders for the narrator.
func SalesData(records []entity.ArchivedOrder) []Sale {
	out := make([]Sale, 0, len(records))
	for _, r := range records {
		items := make([]SaleItem, 0, len(r.Items))
		for _, it := range r.Items {
			items = append(items, SaleItem{Name: it.Name, Qty: it.Quantity})
		}
		out = append(out, Sale{Items: items, Total: codec.NewDecimal(r.Total), Date: r.Timestamp.Format(dateLayout)})
	}
	return out
}

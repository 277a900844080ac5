package order

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/messaging"
	"github.com/Additional-Code/tableside/internal/repository/order"
	"github.com/Additional-Code/tableside/internal/repository/product"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/tableside/service/order")
)

// LineItem is one requested product and quantity.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Service places orders and tracks their status.
type Service struct {
	orders    *order.Repository
	products  *product.Repository
	backend   store.Backend
	publisher messaging.Client
	logger    *zap.Logger
	now       func() time.Time

	created       metric.Int64Counter
	stockFailures metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders    *order.Repository
	Products  *product.Repository
	Backend   store.Backend
	Publisher messaging.Client `optional:"true"`
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	created, err := serviceMeter.Int64Counter("tableside.orders.created",
		metric.WithDescription("Orders placed"))
	if err != nil {
		return nil, err
	}
	stockFailures, err := serviceMeter.Int64Counter("tableside.orders.stock_decrement_failures",
		metric.WithDescription("Stock decrements that failed after the order was stored"))
	if err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orders:        p.Orders,
		products:      p.Products,
		backend:       p.Backend,
		publisher:     p.Publisher,
		logger:        logger,
		now:           time.Now,
		created:       created,
		stockFailures: stockFailures,
	}, nil
}

// Validate checks an order request before any backend call.
func Validate(tableID entity.TableID, lines []LineItem) error {
	if !tableID.Valid() {
		return errorbank.Validation("table id must be a positive integer", errorbank.WithDetail("field", "tableId"))
	}
	if len(lines) == 0 {
		return errorbank.Validation("order must contain at least one item", errorbank.WithDetail("field", "items"))
	}
	for i, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return errorbank.Validation("item product id is required", errorbank.WithDetail("item", i))
		}
		if line.Quantity <= 0 {
			return errorbank.Validation("item quantity must be positive", errorbank.WithDetail("item", i))
		}
	}
	return nil
}

// Create snapshots the current name and price of each product, stores the
// order as PENDING and decrements stock, never below zero. On a transactional
// backend all writes commit together. Otherwise the order is stored first and
// each decrement is attempted separately; a failed decrement is logged and
// does not fail the order.
func (s *Service) Create(ctx context.Context, tableID entity.TableID, lines []LineItem, observation string) (entity.Order, error) {
	if err := Validate(tableID, lines); err != nil {
		return entity.Order{}, err
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.Create",
		trace.WithAttributes(attribute.Int("order.table_id", int(tableID)), attribute.Int("order.lines", len(lines))))
	defer span.End()

	var (
		created entity.Order
		err     error
	)
	if tx, ok := s.backend.(store.Transactor); ok {
		err = tx.RunInTx(ctx, func(ctx context.Context, t store.Tx) error {
			products := s.products.WithTx(t)
			o, err := s.place(ctx, products, s.orders.WithTx(t), tableID, lines, observation)
			if err != nil {
				return err
			}
			for _, line := range lines {
				if err := decrement(ctx, products, line); err != nil {
					return err
				}
			}
			created = o
			return nil
		})
	} else {
		created, err = s.place(ctx, s.products, s.orders, tableID, lines, observation)
		if err == nil {
			for _, line := range lines {
				if derr := decrement(ctx, s.products, line); derr != nil {
					s.stockFailures.Add(ctx, 1)
					s.logger.Warn("stock decrement failed; order kept",
						zap.String("order_id", created.ID),
						zap.String("product_id", line.ProductID),
						zap.Int("quantity", line.Quantity),
						zap.Error(derr))
				}
			}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return entity.Order{}, mapError("failed to create order", err)
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", s.backend.Name())))
	s.logger.Info("order created",
		zap.String("order_id", created.ID),
		zap.Int("table_id", int(created.TableID)),
		zap.String("total", created.Total.StringFixed(2)))
	s.publish(ctx, messaging.EventOrderCreated, created)
	return created, nil
}

func (s *Service) place(ctx context.Context, products *product.Repository, orders *order.Repository,
	tableID entity.TableID, lines []LineItem, observation string) (entity.Order, error) {
	items := make([]entity.OrderItem, 0, len(lines))
	for _, line := range lines {
		p, err := products.Get(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return entity.Order{}, errorbank.NotFound("product not found", errorbank.WithDetail("id", line.ProductID))
			}
			return entity.Order{}, err
		}
		items = append(items, entity.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.Quantity,
		})
	}

	return orders.Create(ctx, entity.Order{
		TableID:     tableID,
		Items:       items,
		Status:      entity.OrderPending,
		Timestamp:   s.now(),
		Total:       entity.ItemsTotal(items),
		Observation: strings.TrimSpace(observation),
	})
}

func decrement(ctx context.Context, products *product.Repository, line LineItem) error {
	p, err := products.Get(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return errorbank.NotFound("product not found", errorbank.WithCause(err), errorbank.WithDetail("id", line.ProductID))
		}
		return err
	}
	p.Stock -= line.Quantity
	if p.Stock < 0 {
		p.Stock = 0
	}
	return products.Put(ctx, p)
}

// SetStatus overwrites the status of an order. Any valid status is accepted
// regardless of the current one.
func (s *Service) SetStatus(ctx context.Context, id string, status entity.OrderStatus) (entity.Order, error) {
	if strings.TrimSpace(id) == "" {
		return entity.Order{}, errorbank.Validation("order id is required")
	}
	if !status.Valid() {
		return entity.Order{}, errorbank.Validation("unknown order status", errorbank.WithDetail("status", string(status)))
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.SetStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("order.status", string(status))))
	defer span.End()

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return entity.Order{}, mapError("failed to load order", err)
	}
	previous := current.Status
	current.Status = status
	if err := s.orders.Update(ctx, current); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return entity.Order{}, mapError("failed to update order", err)
	}

	s.logger.Info("order status changed",
		zap.String("order_id", id), zap.String("from", string(previous)), zap.String("to", string(status)))
	s.publish(ctx, messaging.EventOrderStatusChanged, StatusChangedEvent{ID: id, TableID: current.TableID, From: previous, To: status})
	return current, nil
}

// Get fetches one order.
func (s *Service) Get(ctx context.Context, id string) (entity.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return entity.Order{}, mapError("failed to load order", err)
	}
	return o, nil
}

// List reads every live order once, newest first.
func (s *Service) List(ctx context.Context) ([]entity.Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, mapError("failed to load orders", err)
	}
	SortByRecency(orders)
	return orders, nil
}

// Subscribe streams live orders, newest first.
func (s *Service) Subscribe(ctx context.Context, fn func([]entity.Order)) (store.Unsubscribe, error) {
	unsub, err := s.orders.Subscribe(ctx, func(orders []entity.Order) {
		SortByRecency(orders)
		fn(orders)
	})
	if err != nil {
		return nil, mapError("failed to subscribe to orders", err)
	}
	return unsub, nil
}

// SortByRecency orders newest first.
func SortByRecency(orders []entity.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Timestamp.After(orders[j].Timestamp)
	})
}

// FilterByTable keeps the orders placed for tableID.
func FilterByTable(orders []entity.Order, tableID entity.TableID) []entity.Order {
	out := make([]entity.Order, 0)
	for _, o := range orders {
		if o.TableID == tableID {
			out = append(out, o)
		}
	}
	return out
}

// ActiveForTable keeps the orders of tableID that still count toward its bill.
func ActiveForTable(orders []entity.Order, tableID entity.TableID) []entity.Order {
	out := make([]entity.Order, 0)
	for _, o := range FilterByTable(orders, tableID) {
		if o.Status.Active() {
			out = append(out, o)
		}
	}
	return out
}

// StatusChangedEvent is emitted after a status overwrite.
type StatusChangedEvent struct {
	ID      string             `json:"id"`
	TableID entity.TableID     `json:"tableId"`
	From    entity.OrderStatus `json:"from"`
	To      entity.OrderStatus `json:"to"`
}

// CreatedEvent is emitted when a new order is stored.
type CreatedEvent struct {
	ID          string             `json:"id"`
	TableID     entity.TableID     `json:"tableId"`
	Items       []CreatedEventItem `json:"items"`
	Total       string             `json:"total"`
	Observation string             `json:"observation,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// CreatedEventItem is one line of a CreatedEvent.
type CreatedEventItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	// Keyed by table so one table's events stay ordered on a single partition.
	key := eventType
	switch v := payload.(type) {
	case entity.Order:
		items := make([]CreatedEventItem, 0, len(v.Items))
		for _, it := range v.Items {
			items = append(items, CreatedEventItem{Name: it.Name, Quantity: it.Quantity})
		}
		key = "table-" + v.TableID.String()
		payload = CreatedEvent{
			ID:          v.ID,
			TableID:     v.TableID,
			Items:       items,
			Total:       v.Total.StringFixed(2),
			Observation: v.Observation,
			CreatedAt:   v.Timestamp,
		}
	case StatusChangedEvent:
		key = "table-" + v.TableID.String()
	}
	if err := messaging.PublishEvent(ctx, s.publisher, eventType, key, payload); err != nil {
		s.logger.Error("publish order event", zap.String("type", eventType), zap.Error(err))
	}
}

func mapError(message string, err error) error {
	var appErr *errorbank.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, store.ErrNotFound):
		return errorbank.NotFound("order not found", errorbank.WithCause(err))
	case store.IsBackendError(err):
		return errorbank.Backend(message, errorbank.WithCause(err))
	default:
		return errorbank.Internal(message, errorbank.WithCause(err))
	}
}

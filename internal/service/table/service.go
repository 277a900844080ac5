package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/messaging"
	"github.com/Additional-Code/tableside/internal/repository/history"
	orderrepo "github.com/Additional-Code/tableside/internal/repository/order"
	tablerepo "github.com/Additional-Code/tableside/internal/repository/table"
	orderservice "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/table")
	serviceMeter  = otel.Meter("github.com/Additional-Code/tableside/service/table")
)

// NoOrdersWarning is reported when a table is closed without anything to archive.
const NoOrdersWarning = "no active orders found to archive"

// Outcome reports what a table-level workflow did.
type Outcome struct {
	TableID entity.TableID `json:"tableId"`
	Count   int            `json:"count"`
	Message string         `json:"message"`
	Warning string         `json:"warning,omitempty"`
}

// CloseRequestedEvent is emitted when a table asks for the bill.
type CloseRequestedEvent struct {
	TableID       entity.TableID       `json:"tableId"`
	PaymentMethod entity.PaymentMethod `json:"paymentMethod"`
}

// Service runs the table billing workflows.
type Service struct {
	tables    *tablerepo.Repository
	orders    *orderrepo.Repository
	history   *history.Repository
	publisher messaging.Client
	logger    *zap.Logger
	now       func() time.Time
	locks     sync.Map

	archived    metric.Int64Counter
	forceClears metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Tables    *tablerepo.Repository
	Orders    *orderrepo.Repository
	History   *history.Repository
	Publisher messaging.Client `optional:"true"`
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	archived, err := serviceMeter.Int64Counter("tableside.tables.orders_archived",
		metric.WithDescription("Orders moved to history by table finalization"))
	if err != nil {
		return nil, err
	}
	forceClears, err := serviceMeter.Int64Counter("tableside.tables.force_clears",
		metric.WithDescription("Tables cleared without archiving"))
	if err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tables:      p.Tables,
		orders:      p.Orders,
		history:     p.History,
		publisher:   p.Publisher,
		logger:      logger,
		now:         time.Now,
		archived:    archived,
		forceClears: forceClears,
	}, nil
}

func (s *Service) lock(id entity.TableID) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func validateID(id entity.TableID) error {
	if !id.Valid() {
		return errorbank.Validation("table id must be a positive integer", errorbank.WithDetail("field", "tableId"))
	}
	return nil
}

// RequestClose marks the table as waiting for payment with the chosen method.
// It does not check whether the table consumed anything.
func (s *Service) RequestClose(ctx context.Context, id entity.TableID, method entity.PaymentMethod) (entity.TableSession, error) {
	if err := validateID(id); err != nil {
		return entity.TableSession{}, err
	}
	if !method.Valid() {
		return entity.TableSession{}, errorbank.Validation("unknown payment method", errorbank.WithDetail("paymentMethod", string(method)))
	}

	session := entity.TableSession{TableID: id, Status: entity.TableClosingRequested, PaymentMethod: method}
	if err := s.tables.Put(ctx, session); err != nil {
		return entity.TableSession{}, mapError("failed to request table close", err)
	}

	s.logger.Info("table close requested", zap.Int("table_id", int(id)), zap.String("payment_method", string(method)))
	s.publish(ctx, messaging.EventTableCloseRequested, id, CloseRequestedEvent{TableID: id, PaymentMethod: method})
	return session, nil
}

// Get returns the session of one table; tables without a record are OPEN.
func (s *Service) Get(ctx context.Context, id entity.TableID) (entity.TableSession, error) {
	if err := validateID(id); err != nil {
		return entity.TableSession{}, err
	}
	session, err := s.tables.Get(ctx, id)
	if err != nil {
		return entity.TableSession{}, mapError("failed to load table", err)
	}
	return session, nil
}

// List returns every table with a persisted session.
func (s *Service) List(ctx context.Context) ([]entity.TableSession, error) {
	sessions, err := s.tables.List(ctx)
	if err != nil {
		return nil, mapError("failed to load tables", err)
	}
	return sessions, nil
}

// Subscribe streams persisted sessions.
func (s *Service) Subscribe(ctx context.Context, fn func([]entity.TableSession)) (store.Unsubscribe, error) {
	unsub, err := s.tables.Subscribe(ctx, fn)
	if err != nil {
		return nil, mapError("failed to subscribe to tables", err)
	}
	return unsub, nil
}

// Finalize closes the bill. The session record is deleted first, on its own.
// Every live order of the table is then moved to history as PAID in one
// atomic commit, so a failed archive leaves the orders live but the session
// already gone. A table without orders still closes, with a warning. If
// another operator archived or cleared the same orders first, nothing is
// moved and a conflict is returned.
func (s *Service) Finalize(ctx context.Context, id entity.TableID) (Outcome, error) {
	if err := validateID(id); err != nil {
		return Outcome{}, err
	}
	unlock := s.lock(id)
	defer unlock()

	ctx, span := serviceTracer.Start(ctx, "TableService.Finalize", trace.WithAttributes(attribute.Int("table.id", int(id))))
	defer span.End()

	if err := s.tables.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return Outcome{}, mapError("failed to close table", err)
	}

	live, err := s.orders.List(ctx)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, mapError("failed to load orders", err)
	}
	tableOrders := orderservice.FilterByTable(live, id)
	if len(tableOrders) == 0 {
		s.logger.Warn("table finalized without orders", zap.Int("table_id", int(id)))
		outcome := Outcome{TableID: id, Message: fmt.Sprintf("table %d closed", id), Warning: NoOrdersWarning}
		s.publish(ctx, messaging.EventTableFinalized, id, outcome)
		return outcome, nil
	}

	archivedAt := s.now()
	records := make([]entity.ArchivedOrder, 0, len(tableOrders))
	for _, o := range tableOrders {
		previous := o.Status
		o.Status = entity.OrderPaid
		records = append(records, entity.ArchivedOrder{Order: o, ArchivedAt: archivedAt, PreviousStatus: previous})
	}

	if err := s.history.Archive(ctx, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive failed")
		if errors.Is(err, store.ErrConflict) {
			return Outcome{}, errorbank.Conflict("table orders changed while closing; reload and retry",
				errorbank.WithCause(err), errorbank.WithDetail("tableId", int(id)))
		}
		return Outcome{}, mapError("failed to archive orders", err)
	}

	s.archived.Add(ctx, int64(len(records)))
	s.logger.Info("table finalized", zap.Int("table_id", int(id)), zap.Int("archived", len(records)))
	outcome := Outcome{
		TableID: id,
		Count:   len(records),
		Message: fmt.Sprintf("table %d closed: %d orders archived", id, len(records)),
	}
	s.publish(ctx, messaging.EventTableFinalized, id, outcome)
	return outcome, nil
}

// ForceClear removes the session record and deletes every live order of the
// table without archiving. It always reports how many orders were removed.
func (s *Service) ForceClear(ctx context.Context, id entity.TableID) (Outcome, error) {
	if err := validateID(id); err != nil {
		return Outcome{}, err
	}
	unlock := s.lock(id)
	defer unlock()

	ctx, span := serviceTracer.Start(ctx, "TableService.ForceClear", trace.WithAttributes(attribute.Int("table.id", int(id))))
	defer span.End()

	if err := s.tables.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return Outcome{}, mapError("failed to clear table", err)
	}

	live, err := s.orders.List(ctx)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, mapError("failed to load orders", err)
	}
	tableOrders := orderservice.FilterByTable(live, id)
	ids := make([]string, 0, len(tableOrders))
	for _, o := range tableOrders {
		ids = append(ids, o.ID)
	}
	if err := s.orders.DeleteAll(ctx, ids); err != nil {
		span.RecordError(err)
		return Outcome{}, mapError("failed to delete orders", err)
	}

	s.forceClears.Add(ctx, 1)
	s.logger.Warn("table force cleared", zap.Int("table_id", int(id)), zap.Int("removed", len(ids)))

	outcome := Outcome{TableID: id, Count: len(ids)}
	if len(ids) == 0 {
		outcome.Message = fmt.Sprintf("table %d cleared: no orders found", id)
	} else {
		outcome.Message = fmt.Sprintf("table %d cleared: %d orders removed", id, len(ids))
	}
	s.publish(ctx, messaging.EventTableForceCleared, id, outcome)
	return outcome, nil
}

// History returns archived orders whose archive time is within [start, end].
func (s *Service) History(ctx context.Context, start, end time.Time) ([]entity.ArchivedOrder, error) {
	if end.Before(start) {
		return nil, errorbank.Validation("range end must not precede start")
	}
	records, err := s.history.Range(ctx, start, end)
	if err != nil {
		return nil, mapError("failed to load history", err)
	}
	return records, nil
}

// Bill is what a table's client screen shows.
type Bill struct {
	Session entity.TableSession
	Orders  []entity.Order
	Total   decimal.Decimal
}

// Bill returns the session with the table's active orders and running total.
func (s *Service) Bill(ctx context.Context, id entity.TableID) (Bill, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	live, err := s.orders.List(ctx)
	if err != nil {
		return Bill{}, mapError("failed to load orders", err)
	}
	active := orderservice.ActiveForTable(live, id)
	orderservice.SortByRecency(active)

	total := decimal.Zero
	for _, o := range active {
		total = total.Add(o.Total)
	}
	return Bill{Session: session, Orders: active, Total: total}, nil
}

// ReceiptLine aggregates one product across a table's orders.
type ReceiptLine struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// Receipt is printable bill data.
type Receipt struct {
	TableID       entity.TableID
	PaymentMethod entity.PaymentMethod
	Lines         []ReceiptLine
	Total         decimal.Decimal
	GeneratedAt   time.Time
}

// Receipt aggregates the table's non-cancelled live orders by product.
func (s *Service) Receipt(ctx context.Context, id entity.TableID) (Receipt, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	live, err := s.orders.List(ctx)
	if err != nil {
		return Receipt{}, mapError("failed to load orders", err)
	}
	orders := orderservice.FilterByTable(live, id)
	orderservice.SortByRecency(orders)

	receipt := Receipt{TableID: id, PaymentMethod: session.PaymentMethod, Total: decimal.Zero, GeneratedAt: s.now()}
	index := make(map[string]int)
	for i := len(orders) - 1; i >= 0; i-- {
		o := orders[i]
		if o.Status == entity.OrderCanceled {
			continue
		}
		for _, it := range o.Items {
			pos, ok := index[it.ProductID]
			if !ok {
				pos = len(receipt.Lines)
				index[it.ProductID] = pos
				receipt.Lines = append(receipt.Lines, ReceiptLine{
					ProductID: it.ProductID,
					Name:      it.Name,
					UnitPrice: it.Price,
					Total:     decimal.Zero,
				})
			}
			line := &receipt.Lines[pos]
			line.Quantity += it.Quantity
			line.Total = line.Total.Add(it.Subtotal())
		}
		receipt.Total = receipt.Total.Add(o.Total)
	}
	return receipt, nil
}

func (s *Service) publish(ctx context.Context, eventType string, id entity.TableID, payload any) {
	if s.publisher == nil {
		return
	}
	if err := messaging.PublishEvent(ctx, s.publisher, eventType, "table-"+id.String(), payload); err != nil {
		s.logger.Error("publish table event", zap.String("type", eventType), zap.Error(err))
	}
}

func mapError(message string, err error) error {
	var appErr *errorbank.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, store.ErrConflict):
		return errorbank.Conflict(message, errorbank.WithCause(err))
	case store.IsBackendError(err):
		return errorbank.Backend(message, errorbank.WithCause(err))
	default:
		return errorbank.Internal(message, errorbank.WithCause(err))
	}
}

package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/codec"
	"github.com/Additional-Code/tableside/internal/store"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tableside/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = store.ErrNotFound

// ItemDocument is the stored form of an order line.
type ItemDocument struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Price     codec.Decimal `json:"price"`
	Quantity  codec.Int     `json:"quantity"`
}

// Document is the stored form of an order. The history collection extends
// it with archive fields.
type Document struct {
	TableID     entity.TableID     `json:"tableId"`
	Items       []ItemDocument     `json:"items"`
	Status      entity.OrderStatus `json:"status"`
	Timestamp   codec.Millis       `json:"timestamp"`
	Total       codec.Decimal      `json:"total"`
	Observation string             `json:"observation,omitempty"`
}

// ToDocument converts an order for storage.
func ToDocument(o entity.Order) Document {
	items := make([]ItemDocument, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemDocument{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     codec.NewDecimal(it.Price),
			Quantity:  codec.Int(it.Quantity),
		})
	}
	return Document{
		TableID:     o.TableID,
		Items:       items,
		Status:      o.Status,
		Timestamp:   codec.NewMillis(o.Timestamp),
		Total:       codec.NewDecimal(o.Total),
		Observation: o.Observation,
	}
}

// Entity converts a stored document back to an order.
func (d Document) Entity(id string) (entity.Order, error) {
	if !d.TableID.Valid() {
		return entity.Order{}, fmt.Errorf("order %s: missing table id", id)
	}
	if !d.Status.Valid() {
		return entity.Order{}, fmt.Errorf("order %s: missing status", id)
	}
	items := make([]entity.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, entity.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price.Decimal,
			Quantity:  int(it.Quantity),
		})
	}
	return entity.Order{
		ID:          id,
		TableID:     d.TableID,
		Items:       items,
		Status:      d.Status,
		Timestamp:   d.Timestamp.Time,
		Total:       d.Total.Decimal,
		Observation: d.Observation,
	}, nil
}

// Encode renders o as a stored document.
func Encode(o entity.Order) ([]byte, error) {
	return json.Marshal(ToDocument(o))
}

// Decode parses a stored order.
func Decode(doc store.Document) (entity.Order, error) {
	var d Document
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return entity.Order{}, err
	}
	return d.Entity(doc.ID)
}

// Repository reads and writes live orders.
type Repository struct {
	backend store.Backend
	db      store.Tx
	logger  *zap.Logger
}

// NewRepository wires a repository over the selected backend.
func NewRepository(backend store.Backend, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{backend: backend, db: backend, logger: logger}
}

// WithTx returns a repository whose reads and writes go through tx.
func (r *Repository) WithTx(tx store.Tx) *Repository {
	clone := *r
	clone.db = tx
	return &clone
}

// DecodeAll decodes a snapshot, skipping documents that cannot be read.
func (r *Repository) DecodeAll(docs []store.Document) []entity.Order {
	out := make([]entity.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := Decode(doc)
		if err != nil {
			r.logger.Warn("skipping unreadable order", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, o)
	}
	return out
}

// List returns every live order.
func (r *Repository) List(ctx context.Context) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	docs, err := r.db.List(ctx, store.Orders)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}
	return r.DecodeAll(docs), nil
}

// Get fetches one order.
func (r *Repository) Get(ctx context.Context, id string) (entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	doc, err := r.db.Get(ctx, store.Orders, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "get failed")
		}
		return entity.Order{}, err
	}
	return Decode(doc)
}

// Create stores o under a backend-assigned id.
func (r *Repository) Create(ctx context.Context, o entity.Order) (entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.Int("order.table_id", int(o.TableID))))
	defer span.End()

	body, err := Encode(o)
	if err != nil {
		return entity.Order{}, err
	}
	doc, err := r.db.Create(ctx, store.Orders, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return entity.Order{}, err
	}
	o.ID = doc.ID
	return o, nil
}

// Update overwrites an existing order, returning ErrNotFound when absent.
func (r *Repository) Update(ctx context.Context, o entity.Order) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer span.End()

	body, err := Encode(o)
	if err != nil {
		return err
	}
	if err := r.backend.Update(ctx, store.Orders, o.ID, body); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
		}
		return err
	}
	return nil
}

// DeleteAll removes the given orders in one batch. Ids already gone are ignored.
func (r *Repository) DeleteAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.DeleteAll", trace.WithAttributes(attribute.Int("order.count", len(ids))))
	defer span.End()

	batch := store.NewBatch()
	for _, id := range ids {
		batch.Delete(store.Orders, id)
	}
	if err := r.backend.Commit(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	return nil
}

// Subscribe streams the decoded live orders.
func (r *Repository) Subscribe(ctx context.Context, fn func([]entity.Order)) (store.Unsubscribe, error) {
	return r.backend.Subscribe(ctx, store.Orders, func(docs []store.Document) {
		fn(r.DecodeAll(docs))
	})
}

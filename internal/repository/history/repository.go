package history

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/codec"
	"github.com/Additional-Code/tableside/internal/repository/order"
	"github.com/Additional-Code/tableside/internal/store"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tableside/repository/history")

type document struct {
	order.Document
	ArchivedAt     codec.Millis       `json:"archivedAt"`
	PreviousStatus entity.OrderStatus `json:"previousStatus,omitempty"`
}

// Encode renders an archived order.
func Encode(a entity.ArchivedOrder) ([]byte, error) {
	return json.Marshal(document{
		Document:       order.ToDocument(a.Order),
		ArchivedAt:     codec.NewMillis(a.ArchivedAt),
		PreviousStatus: a.PreviousStatus,
	})
}

// Decode parses a history record.
func Decode(doc store.Document) (entity.ArchivedOrder, error) {
	var d document
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return entity.ArchivedOrder{}, err
	}
	o, err := d.Document.Entity(doc.ID)
	if err != nil {
		return entity.ArchivedOrder{}, err
	}
	return entity.ArchivedOrder{
		Order:          o,
		ArchivedAt:     d.ArchivedAt.Time,
		PreviousStatus: d.PreviousStatus,
	}, nil
}

// Repository reads the history collection and moves orders into it.
type Repository struct {
	backend store.Backend
	logger  *zap.Logger
}

// NewRepository wires a repository over the selected backend.
func NewRepository(backend store.Backend, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{backend: backend, logger: logger}
}

// DecodeAll decodes a snapshot, skipping documents that cannot be read.
func (r *Repository) DecodeAll(docs []store.Document) []entity.ArchivedOrder {
	out := make([]entity.ArchivedOrder, 0, len(docs))
	for _, doc := range docs {
		a, err := Decode(doc)
		if err != nil {
			r.logger.Warn("skipping unreadable history record", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out
}

// List returns every archived order.
func (r *Repository) List(ctx context.Context) ([]entity.ArchivedOrder, error) {
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.List")
	defer span.End()

	docs, err := r.backend.List(ctx, store.History)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}
	return r.DecodeAll(docs), nil
}

// Range returns archived orders whose effective time falls within
// [start, end], both ends inclusive.
func (r *Repository) Range(ctx context.Context, start, end time.Time) ([]entity.ArchivedOrder, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entity.ArchivedOrder, 0, len(all))
	for _, a := range all {
		at := a.EffectiveTime()
		if at.Before(start) || at.After(end) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Archive writes each record to history as PAID and removes the live order in
// a single commit. If any live order is already gone the whole move fails
// with store.ErrConflict.
func (r *Repository) Archive(ctx context.Context, records []entity.ArchivedOrder) error {
	if len(records) == 0 {
		return nil
	}
	ctx, span := repoTracer.Start(ctx, "HistoryRepository.Archive", trace.WithAttributes(attribute.Int("order.count", len(records))))
	defer span.End()

	batch := store.NewBatch()
	for _, rec := range records {
		body, err := Encode(rec)
		if err != nil {
			return err
		}
		batch.Put(store.History, rec.ID, body)
		batch.DeleteExisting(store.Orders, rec.ID)
	}
	if err := r.backend.Commit(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive failed")
		return err
	}
	return nil
}

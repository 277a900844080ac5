package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/store"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tableside/repository/table")

type document struct {
	TableID       entity.TableID       `json:"tableId"`
	Status        entity.TableStatus   `json:"status"`
	PaymentMethod entity.PaymentMethod `json:"paymentMethod,omitempty"`
}

// Encode renders a session.
func Encode(s entity.TableSession) ([]byte, error) {
	return json.Marshal(document{TableID: s.TableID, Status: s.Status, PaymentMethod: s.PaymentMethod})
}

// Decode parses a session. The document id is the table number and wins when
// the body omits it.
func Decode(doc store.Document) (entity.TableSession, error) {
	var d document
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return entity.TableSession{}, err
	}
	if !d.TableID.Valid() {
		id, err := entity.ParseTableID(doc.ID)
		if err != nil {
			return entity.TableSession{}, err
		}
		d.TableID = id
	}
	if !d.Status.Valid() {
		return entity.TableSession{}, fmt.Errorf("table %s: missing status", doc.ID)
	}
	return entity.TableSession{TableID: d.TableID, Status: d.Status, PaymentMethod: d.PaymentMethod}, nil
}

// Repository reads and writes table session records.
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
func (r *Repository) DecodeAll(docs []store.Document) []entity.TableSession {
	out := make([]entity.TableSession, 0, len(docs))
	for _, doc := range docs {
		s, err := Decode(doc)
		if err != nil {
			r.logger.Warn("skipping unreadable table session", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, s)
	}
	return out
}

// List returns every persisted session.
func (r *Repository) List(ctx context.Context) ([]entity.TableSession, error) {
	docs, err := r.backend.List(ctx, store.Tables)
	if err != nil {
		return nil, err
	}
	return r.DecodeAll(docs), nil
}

// Get returns the session for id, or an OPEN session when none is stored.
func (r *Repository) Get(ctx context.Context, id entity.TableID) (entity.TableSession, error) {
	doc, err := r.backend.Get(ctx, store.Tables, id.String())
	if errors.Is(err, store.ErrNotFound) {
		return entity.OpenSession(id), nil
	}
	if err != nil {
		return entity.TableSession{}, err
	}
	return Decode(doc)
}

// Put upserts a session record.
func (r *Repository) Put(ctx context.Context, s entity.TableSession) error {
	ctx, span := repoTracer.Start(ctx, "TableRepository.Put",
		trace.WithAttributes(attribute.Int("table.id", int(s.TableID)), attribute.String("table.status", string(s.Status))))
	defer span.End()

	body, err := Encode(s)
	if err != nil {
		return err
	}
	return r.backend.Put(ctx, store.Tables, s.TableID.String(), body)
}

// Delete removes the record, reopening the table. Missing records are ignored.
func (r *Repository) Delete(ctx context.Context, id entity.TableID) error {
	ctx, span := repoTracer.Start(ctx, "TableRepository.Delete", trace.WithAttributes(attribute.Int("table.id", int(id))))
	defer span.End()

	return r.backend.Delete(ctx, store.Tables, id.String())
}

// Subscribe streams the decoded sessions.
func (r *Repository) Subscribe(ctx context.Context, fn func([]entity.TableSession)) (store.Unsubscribe, error) {
	return r.backend.Subscribe(ctx, store.Tables, func(docs []store.Document) {
		fn(r.DecodeAll(docs))
	})
}

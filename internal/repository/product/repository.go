package product

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/codec"
	"github.com/Additional-Code/tableside/internal/store"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tableside/repository/product")

// ErrNotFound is returned when a product is missing.
var ErrNotFound = store.ErrNotFound

type document struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       codec.Decimal `json:"price"`
	Category    string        `json:"category"`
	ImageURL    string        `json:"imageUrl"`
	Stock       codec.Int     `json:"stock"`
}

// Repository reads and writes catalog documents.
type Repository struct {
	backend store.Backend
	db      store.Tx
	inTx    bool
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
	clone.inTx = true
	return &clone
}

// Encode renders p as a stored document.
func Encode(p entity.Product) ([]byte, error) {
	return json.Marshal(document{
		Name:        p.Name,
		Description: p.Description,
		Price:       codec.NewDecimal(p.Price),
		Category:    string(p.Category),
		ImageURL:    p.ImageURL,
		Stock:       codec.Int(p.Stock),
	})
}

// Decode parses a stored document. Text prices and stock are coerced to
// numbers and negative stock reads as zero. The stored image URL is kept
// as is; callers that render it use DisplayImage.
func Decode(doc store.Document) (entity.Product, error) {
	var d document
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return entity.Product{}, err
	}
	category, err := entity.ParseCategory(d.Category)
	if err != nil {
		return entity.Product{}, err
	}
	p := entity.Product{
		ID:          doc.ID,
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Price:       d.Price.Decimal,
		Category:    category,
		ImageURL:    strings.TrimSpace(d.ImageURL),
		Stock:       int(d.Stock),
	}
	if p.Stock < 0 {
		p.Stock = 0
	}
	return p, nil
}

// DecodeAll decodes a snapshot, skipping documents that cannot be read.
func (r *Repository) DecodeAll(docs []store.Document) []entity.Product {
	out := make([]entity.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := Decode(doc)
		if err != nil {
			r.logger.Warn("skipping unreadable product", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

// List returns the whole catalog.
func (r *Repository) List(ctx context.Context) ([]entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.List")
	defer span.End()

	docs, err := r.db.List(ctx, store.Products)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}
	return r.DecodeAll(docs), nil
}

// Get fetches one product.
func (r *Repository) Get(ctx context.Context, id string) (entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Get", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	doc, err := r.db.Get(ctx, store.Products, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "get failed")
		}
		return entity.Product{}, err
	}
	return Decode(doc)
}

// Create stores p under a backend-assigned id.
func (r *Repository) Create(ctx context.Context, p entity.Product) (entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Create", trace.WithAttributes(attribute.String("product.name", p.Name)))
	defer span.End()

	body, err := Encode(p)
	if err != nil {
		return entity.Product{}, err
	}
	doc, err := r.db.Create(ctx, store.Products, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return entity.Product{}, err
	}
	p.ID = doc.ID
	return p, nil
}

// Put upserts p under p.ID.
func (r *Repository) Put(ctx context.Context, p entity.Product) error {
	body, err := Encode(p)
	if err != nil {
		return err
	}
	return r.db.Put(ctx, store.Products, p.ID, body)
}

// Update overwrites an existing product, returning ErrNotFound when absent.
func (r *Repository) Update(ctx context.Context, p entity.Product) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Update", trace.WithAttributes(attribute.String("product.id", p.ID)))
	defer span.End()

	body, err := Encode(p)
	if err != nil {
		return err
	}
	if r.inTx {
		if _, err := r.db.Get(ctx, store.Products, p.ID); err != nil {
			return err
		}
		return r.db.Put(ctx, store.Products, p.ID, body)
	}
	return r.backend.Update(ctx, store.Products, p.ID, body)
}

// Delete removes a product; unknown ids are ignored.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.db.Delete(ctx, store.Products, id)
}

// Subscribe streams the decoded catalog.
func (r *Repository) Subscribe(ctx context.Context, fn func([]entity.Product)) (store.Unsubscribe, error) {
	return r.backend.Subscribe(ctx, store.Products, func(docs []store.Document) {
		fn(r.DecodeAll(docs))
	})
}

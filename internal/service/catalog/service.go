package catalog

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/product"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/catalog")
	serviceMeter  = otel.Meter("github.com/Additional-Code/tableside/service/catalog")
)

// Service owns the product catalog.
type Service struct {
	repo    *product.Repository
	backend store.Backend
	logger  *zap.Logger
	merges  metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *product.Repository
	Backend    store.Backend
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	merges, err := serviceMeter.Int64Counter("tableside.catalog.merges",
		metric.WithDescription("Products saved onto an existing same-name product"))
	if err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: p.Repository, backend: p.Backend, logger: logger, merges: merges}, nil
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]entity.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, backendError("failed to load catalog", err)
	}
	return products, nil
}

// ListAvailable returns products that still have stock.
func (s *Service) ListAvailable(ctx context.Context) ([]entity.Product, error) {
	products, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Available(products), nil
}

// Available filters products with stock.
func Available(products []entity.Product) []entity.Product {
	out := make([]entity.Product, 0, len(products))
	for _, p := range products {
		if p.Available() {
			out = append(out, p)
		}
	}
	return out
}

// Get fetches one product.
func (s *Service) Get(ctx context.Context, id string) (entity.Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return entity.Product{}, errorbank.NotFound("product not found", errorbank.WithDetail("id", id))
		}
		return entity.Product{}, backendError("failed to load product", err)
	}
	return p, nil
}

// Subscribe streams the normalised catalog.
func (s *Service) Subscribe(ctx context.Context, fn func([]entity.Product)) (store.Unsubscribe, error) {
	unsub, err := s.repo.Subscribe(ctx, fn)
	if err != nil {
		return nil, backendError("failed to subscribe to catalog", err)
	}
	return unsub, nil
}

// Validate checks a product before any backend call.
func Validate(p entity.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return errorbank.Validation("product name is required", errorbank.WithDetail("field", "name"))
	}
	if p.Price.IsNegative() {
		return errorbank.Validation("product price must not be negative", errorbank.WithDetail("field", "price"))
	}
	if !p.Category.Valid() {
		return errorbank.Validation("product category is invalid", errorbank.WithDetail("field", "category"))
	}
	return nil
}

// Save creates or updates a product. A new product whose name matches an
// existing one is merged into it: stock is added, price and description are
// overwritten and the image is replaced when one is given.
func (s *Service) Save(ctx context.Context, p entity.Product) (entity.Product, error) {
	if err := Validate(p); err != nil {
		return entity.Product{}, err
	}
	p.Name = strings.TrimSpace(p.Name)
	p.ImageURL = strings.TrimSpace(p.ImageURL)
	if p.Stock < 0 {
		p.Stock = 0
	}

	ctx, span := serviceTracer.Start(ctx, "CatalogService.Save",
		trace.WithAttributes(attribute.String("product.id", p.ID), attribute.String("product.name", p.Name)))
	defer span.End()

	var saved entity.Product
	err := s.withRepo(ctx, func(ctx context.Context, repo *product.Repository) error {
		var err error
		if p.ID != "" {
			saved = p
			return repo.Update(ctx, p)
		}
		saved, err = s.create(ctx, repo, p)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		if errors.Is(err, product.ErrNotFound) {
			return entity.Product{}, errorbank.NotFound("product not found", errorbank.WithDetail("id", p.ID))
		}
		return entity.Product{}, backendError("failed to save product", err)
	}
	return saved, nil
}

func (s *Service) create(ctx context.Context, repo *product.Repository, p entity.Product) (entity.Product, error) {
	existing, err := repo.List(ctx)
	if err != nil {
		return entity.Product{}, err
	}
	for _, current := range existing {
		if current.Name != p.Name {
			continue
		}
		merged := current
		merged.Stock = current.Stock + p.Stock
		merged.Price = p.Price
		merged.Description = p.Description
		merged.Category = p.Category
		if p.ImageURL != "" {
			merged.ImageURL = p.ImageURL
		}
		if err := repo.Put(ctx, merged); err != nil {
			return entity.Product{}, err
		}
		s.merges.Add(ctx, 1)
		s.logger.Info("merged product by name",
			zap.String("id", merged.ID), zap.String("name", merged.Name), zap.Int("stock", merged.Stock))
		return merged, nil
	}
	return repo.Create(ctx, p)
}

// Delete removes a product. Unknown ids are ignored.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errorbank.Validation("product id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return backendError("failed to delete product", err)
	}
	return nil
}

// Seed writes products when the catalog is empty and reports how many were
// written.
func (s *Service) Seed(ctx context.Context, products []entity.Product) (int, error) {
	current, err := s.repo.List(ctx)
	if err != nil {
		return 0, backendError("failed to load catalog", err)
	}
	if len(current) > 0 {
		return 0, nil
	}
	for _, p := range products {
		if err := s.repo.Put(ctx, p); err != nil {
			return 0, backendError("failed to seed catalog", err)
		}
	}
	return len(products), nil
}

// withRepo runs fn in a transaction when the backend supports one.
func (s *Service) withRepo(ctx context.Context, fn func(context.Context, *product.Repository) error) error {
	tx, ok := s.backend.(store.Transactor)
	if !ok {
		return fn(ctx, s.repo)
	}
	return tx.RunInTx(ctx, func(ctx context.Context, t store.Tx) error {
		return fn(ctx, s.repo.WithTx(t))
	})
}

func backendError(message string, err error) error {
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if store.IsBackendError(err) {
		return errorbank.Backend(message, errorbank.WithCause(err))
	}
	return errorbank.Internal(message, errorbank.WithCause(err))
}

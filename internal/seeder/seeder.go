package seeder

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/service/catalog"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder writes starter data into the selected backend.
type Seeder struct {
	catalog *catalog.Service
	logger  *zap.Logger
}

// New constructs a Seeder.
func New(catalogService *catalog.Service, logger *zap.Logger) *Seeder {
	return &Seeder{catalog: catalogService, logger: logger}
}

// Catalog seeds the default menu when the catalog is empty. It reports how
// many products were written.
func (s *Seeder) Catalog(ctx context.Context) (int, error) {
	n, err := s.catalog.Seed(ctx, DefaultCatalog())
	if err != nil {
		return 0, err
	}

	if s.logger != nil {
		if n == 0 {
			s.logger.Info("catalog already populated; skipping seed")
		} else {
			s.logger.Info("seeded catalog", zap.Int("count", n))
		}
	}
	return n, nil
}

package seeder

import (
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/product"
	"github.com/Additional-Code/tableside/internal/store"
)

// DefaultCatalog is the starter menu written on first run.
func DefaultCatalog() []entity.Product {
	return []entity.Product{
		{
			ID:          "1",
			Name:        "Cerveja Gelada 600ml",
			Description: "Estupidamente gelada",
			Price:       decimal.RequireFromString("15.00"),
			Category:    entity.CategoryDrinks,
			ImageURL:    "https://picsum.photos/200/200?random=1",
			Stock:       48,
		},
		{
			ID:          "2",
			Name:        "Água de Coco",
			Description: "Natural da fruta",
			Price:       decimal.RequireFromString("8.00"),
			Category:    entity.CategoryDrinks,
			ImageURL:    "https://picsum.photos/200/200?random=2",
			Stock:       20,
		},
		{
			ID:          "3",
			Name:        "Isca de Peixe",
			Description: "Acompanha molho tártaro",
			Price:       decimal.RequireFromString("45.00"),
			Category:    entity.CategorySnacks,
			ImageURL:    "https://picsum.photos/200/200?random=3",
			Stock:       10,
		},
		{
			ID:          "4",
			Name:        "Batata Frita",
			Description: "Porção generosa",
			Price:       decimal.RequireFromString("25.00"),
			Category:    entity.CategorySnacks,
			ImageURL:    "https://picsum.photos/200/200?random=4",
			Stock:       15,
		},
	}
}

// CatalogDocuments encodes DefaultCatalog for backends that seed documents
// directly.
func CatalogDocuments() ([]store.Document, error) {
	products := DefaultCatalog()
	docs := make([]store.Document, 0, len(products))
	for _, p := range products {
		body, err := product.Encode(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: p.ID, Data: body})
	}
	return docs, nil
}

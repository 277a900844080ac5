package dto

import (
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/codec"
)

// ProductRequest is the body of product create and update calls.
type ProductRequest struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=500"`
	Price       codec.Decimal   `json:"price" validate:"gte=0"`
	Category    entity.Category `json:"category" validate:"required"`
	ImageURL    string          `json:"imageUrl" validate:"max=2048"`
	Stock       int             `json:"stock" validate:"gte=0"`
}

// Entity converts the request into a product with the given id. An empty id
// means create.
func (r ProductRequest) Entity(id string) entity.Product {
	return entity.Product{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price.Decimal,
		Category:    r.Category,
		ImageURL:    r.ImageURL,
		Stock:       r.Stock,
	}
}

// ProductResponse represents a catalog entry as exposed via transport layers.
type ProductResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         codec.Decimal   `json:"price"`
	Category      entity.Category `json:"category"`
	CategoryLabel string          `json:"categoryLabel"`
	ImageURL      string          `json:"imageUrl"`
	Stock         int             `json:"stock"`
	Available     bool            `json:"available"`
}

// NewProductResponse maps a product, substituting the placeholder image.
func NewProductResponse(p entity.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         codec.NewDecimal(p.Price),
		Category:      p.Category,
		CategoryLabel: p.Category.Label(),
		ImageURL:      p.DisplayImage(),
		Stock:         p.Stock,
		Available:     p.Available(),
	}
}

// NewProductResponses maps a list of products.
func NewProductResponses(products []entity.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, NewProductResponse(p))
	}
	return out
}

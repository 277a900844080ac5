package entity

import "github.com/shopspring/decimal"

// PlaceholderImage is shown for products without a usable picture.
const PlaceholderImage = "https://placehold.co/200?text=Sem+Imagem"

// minImageURLLength is the shortest string treated as a real URL.
const minImageURLLength = 6

// Product is a sellable catalog item.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    Category
	ImageURL    string
	Stock       int
}

// DisplayImage returns the image URL or the placeholder when the stored
// value is too short to be a URL.
func (p Product) DisplayImage() string {
	if len(p.ImageURL) < minImageURLLength {
		return PlaceholderImage
	}
	return p.ImageURL
}

// Available reports whether the product can be ordered.
func (p Product) Available() bool { return p.Stock > 0 }

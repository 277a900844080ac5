// Package qrcode builds the per-table client links printed as QR codes. Image
// rendering is delegated to an external endpoint.
package qrcode

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
)

// Module provides the generator to Fx.
var Module = fx.Provide(New)

// Code is the printable data for one table.
type Code struct {
	TableID  entity.TableID `json:"tableId"`
	Link     string         `json:"link"`
	ImageURL string         `json:"imageUrl"`
}

// Generator turns table numbers into client links and image URLs.
type Generator struct {
	baseURL       string
	imageEndpoint string
	size          int
}

// New builds a generator from configuration.
func New(cfg config.Config) *Generator {
	size := cfg.QRCode.Size
	if size <= 0 {
		size = 400
	}
	return &Generator{
		baseURL:       cfg.QRCode.BaseURL,
		imageEndpoint: cfg.QRCode.ImageEndpoint,
		size:          size,
	}
}

// NormalizeBase adds a scheme when missing and drops one trailing slash.
func NormalizeBase(base string) string {
	clean := strings.TrimSpace(base)
	if !strings.HasPrefix(clean, "http://") && !strings.HasPrefix(clean, "https://") {
		clean = "http://" + clean
	}
	return strings.TrimSuffix(clean, "/")
}

// Link is the URL a customer opens to order for table.
func Link(base string, table entity.TableID) string {
	return fmt.Sprintf("%s/#/client?table=%d", NormalizeBase(base), int(table))
}

// Code builds the link and image URL for table. An empty base falls back to
// the configured one.
func (g *Generator) Code(base string, table entity.TableID) Code {
	if strings.TrimSpace(base) == "" {
		base = g.baseURL
	}
	link := Link(base, table)
	return Code{TableID: table, Link: link, ImageURL: g.ImageURL(link)}
}

// ImageURL asks the external endpoint to render data as a square QR image.
func (g *Generator) ImageURL(data string) string {
	q := url.Values{}
	q.Set("size", fmt.Sprintf("%dx%d", g.size, g.size))
	q.Set("data", data)
	return g.imageEndpoint + "?" + q.Encode()
}

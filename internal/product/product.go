package product

import (
	"encoding/json"
	"strconv"

	"github.com/wichananm65/recently-viewed/internal/recent"
)

// Product is a catalog entry as served to the storefront and maps to the
// `product` table. Path is the routing token clients navigate with.
type Product struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	ImageURL *string `json:"image_url,omitempty"`
	Price    int     `json:"price"`
	Path     string  `json:"path"`
}

// Viewed converts p into the input of the recently viewed list.
func (p Product) Viewed() *recent.Product {
	v := &recent.Product{
		ID:    recent.IntID(p.ID),
		Name:  recent.JSONString(p.Name),
		Price: json.RawMessage(strconv.Itoa(p.Price)),
		Path:  recent.JSONString(p.Path),
	}
	if p.ImageURL != nil {
		v.ImageURL = *p.ImageURL
	}
	return v
}

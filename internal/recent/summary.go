package recent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// PlaceholderImage is stored when a viewed product has no image.
const PlaceholderImage = "https://via.placeholder.com/150"

// ErrInvalidProduct is returned by DecodeProduct for anything that is not a
// JSON object.
var ErrInvalidProduct = errors.New("invalid product")

// ID is an opaque product identifier kept as its compact JSON literal, so a
// string id and a numeric id never compare equal. The zero ID stands for an
// absent id.
type ID struct {
	raw string
}

func IntID(n int) ID { return ID{raw: strconv.Itoa(n)} }

func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: string(b)}
}

func (id ID) IsZero() bool { return id.raw == "" }

// String returns the id without JSON quoting.
func (id ID) String() string {
	var s string
	if err := json.Unmarshal([]byte(id.raw), &s); err == nil {
		return s
	}
	return id.raw
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.raw == "" {
		return []byte("null"), nil
	}
	return []byte(id.raw), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	id.raw = buf.String()
	if id.raw == "null" {
		id.raw = ""
	}
	return nil
}

// Product is the product-like input accepted when recording a view. Either
// image field may carry the picture; image_url wins when both are set.
type Product struct {
	ID       ID              `json:"id,omitzero"`
	Name     json.RawMessage `json:"name,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
	Image    string          `json:"image,omitempty"`
	Price    json.RawMessage `json:"price,omitempty"`
	Path     json.RawMessage `json:"path,omitempty"`
}

// Summary is the lightweight projection kept in the recently viewed list.
// Name, price and path are stored exactly as received, whatever their JSON
// type.
type Summary struct {
	ID    ID              `json:"id,omitzero"`
	Name  json.RawMessage `json:"name,omitempty"`
	Image string          `json:"image"`
	Price json.RawMessage `json:"price,omitempty"`
	Path  json.RawMessage `json:"path,omitempty"`
}

// JSONString encodes s as a JSON string value.
func JSONString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Project maps a product onto the summary stored in the list.
func Project(p Product) Summary {
	image := p.ImageURL
	if image == "" {
		image = p.Image
	}
	if image == "" {
		image = PlaceholderImage
	}
	return Summary{
		ID:    p.ID,
		Name:  p.Name,
		Image: image,
		Price: p.Price,
		Path:  p.Path,
	}
}

// DecodeProduct parses a JSON object into a Product.
func DecodeProduct(data []byte) (*Product, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrInvalidProduct
	}
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	return &p, nil
}

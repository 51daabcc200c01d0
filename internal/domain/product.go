package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductID identifies a product. Catalog files carry numeric ids while the
// index keys documents by string, so both JSON forms are accepted.
type ProductID string

// UnmarshalJSON accepts a JSON string or a JSON number.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ProductID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id must be a string or a number: %w", err)
	}
	*id = ProductID(n.String())
	return nil
}

func (id ProductID) String() string {
	return string(id)
}

// Product is a catalog record.
type Product struct {
	ID          ProductID       `json:"id"`
	Title       string          `json:"title" validate:"max=500"`
	Description string          `json:"description"`
	Category    string          `json:"category" validate:"max=200"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
}

// IndexDocument is the searchable projection of a Product. The engine keys
// it by ID; indexing the same ID again overwrites the previous document.
type IndexDocument struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// Document converts the product into its index document.
func (p Product) Document() IndexDocument {
	return IndexDocument{
		ID:          string(p.ID),
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Quantity:    p.Quantity,
	}
}

// ProductFromDocument rebuilds a product from an index hit. The engine key
// is authoritative for the id, whatever the stored source says.
func ProductFromDocument(key string, doc IndexDocument) Product {
	return Product{
		ID:          ProductID(key),
		Title:       doc.Title,
		Description: doc.Description,
		Category:    doc.Category,
		Price:       doc.Price,
		Quantity:    doc.Quantity,
	}
}

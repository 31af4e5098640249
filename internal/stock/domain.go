package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a raw material line identified by (type, quality, colour shade).
type Item struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Quality    string          `json:"quality"`
	ColorShade string          `json:"color_shade,omitempty"`
	PricePerKg decimal.Decimal `json:"price_per_kg"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Key returns the uniqueness key of the item. An absent shade and an empty
// shade are the same key.
func (i Item) Key() string {
	return i.Type + "\x00" + i.Quality + "\x00" + i.ColorShade
}

// AddItemInput registers a new stock item.
type AddItemInput struct {
	Type       string
	Quality    string
	ColorShade string
	PricePerKg decimal.Decimal
	QuantityKg decimal.Decimal
}

// UpdateItemInput carries the optional adjustments to an item. At least one
// field must be set.
type UpdateItemInput struct {
	AddQuantity   *decimal.Decimal
	NewPricePerKg *decimal.Decimal
}

// Empty reports whether the update carries no change.
func (u UpdateItemInput) Empty() bool {
	return u.AddQuantity == nil && u.NewPricePerKg == nil
}

// ListFilter narrows ListItems by case-insensitive substring.
type ListFilter struct {
	Type       string
	Quality    string
	ColorShade string
}

// Commit event names.
const (
	EntityStockItem = "stock_item"
	ActionCreated   = "created"
	ActionUpdated   = "updated"
)

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxStockQuantity bounds a single (size, color) quantity on restock.
const MaxStockQuantity = 1_000_000

// StockMap maps size -> color -> quantity. A missing entry means zero.
type StockMap map[string]map[string]int

// Available returns the quantity held for size/color.
func (s StockMap) Available(size, color string) int {
	colors, ok := s[size]
	if !ok {
		return 0
	}
	return colors[color]
}

// Set stores qty for size/color, creating the size bucket if needed.
func (s StockMap) Set(size, color string, qty int) {
	colors, ok := s[size]
	if !ok {
		colors = make(map[string]int)
		s[size] = colors
	}
	colors[color] = qty
}

// Clone returns a deep copy so cached maps are never mutated in place.
func (s StockMap) Clone() StockMap {
	out := make(StockMap, len(s))
	for size, colors := range s {
		cp := make(map[string]int, len(colors))
		for color, qty := range colors {
			cp[color] = qty
		}
		out[size] = cp
	}
	return out
}

// Total is the sum of all quantities.
func (s StockMap) Total() int {
	total := 0
	for _, colors := range s {
		for _, qty := range colors {
			total += qty
		}
	}
	return total
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     StockMap        `json:"stock"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

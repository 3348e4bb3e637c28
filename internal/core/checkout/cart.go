package checkout

import (
	"sync"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Cart is the locally held draft of line items. Quantities for the same
// product variant are merged.
type Cart struct {
	mu    sync.Mutex
	items []domain.LineItem
}

func NewCart(items ...domain.LineItem) *Cart {
	c := &Cart{}
	for _, item := range items {
		c.Add(item)
	}
	return c
}

func (c *Cart) Add(item domain.LineItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.items {
		if sameVariant(existing, item) {
			c.items[i].Quantity += item.Quantity
			c.items[i].UnitPrice = item.UnitPrice
			return
		}
	}
	c.items = append(c.items, item)
}

// Remove drops a variant from the cart and reports whether it was present.
func (c *Cart) Remove(productID, size, color string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.items {
		if existing.ProductID == productID && existing.Size == size && existing.Color == color {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Items() []domain.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.LineItem(nil), c.items...)
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

func sameVariant(a, b domain.LineItem) bool {
	return a.ProductID == b.ProductID && a.Size == b.Size && a.Color == b.Color
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MemoryAdapter is a process-local backend used by the "memory" store
// setting and by tests. A single mutex makes every operation atomic.
type MemoryAdapter struct {
	mu          sync.Mutex
	products    map[string]*domain.Product
	orders      map[string]domain.Order
	idempotency map[string]struct{}
	maintenance domain.MaintenanceStatus
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:    make(map[string]*domain.Product),
		orders:      make(map[string]domain.Order),
		idempotency: make(map[string]struct{}),
	}
}

// PutProduct stores a copy of p, replacing any previous product with that id.
func (m *MemoryAdapter) PutProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Stock == nil {
		p.Stock = make(domain.StockMap)
	} else {
		p.Stock = p.Stock.Clone()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.products[p.ID] = &p
}

func (m *MemoryAdapter) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	cp.Stock = p.Stock.Clone()
	return &cp, nil
}

func (m *MemoryAdapter) GetStock(_ context.Context, productID string) (domain.StockMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return p.Stock.Clone(), nil
}

func (m *MemoryAdapter) DecrementStock(_ context.Context, productID, size, color string, amount int) (domain.StockMap, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("decrement amount must be positive, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	current := p.Stock.Available(size, color)
	if current < amount {
		return nil, fmt.Errorf("product %s %s/%s: %w", productID, size, color, domain.ErrInsufficientStock)
	}
	p.Stock.Set(size, color, current-amount)
	return p.Stock.Clone(), nil
}

func (m *MemoryAdapter) IncrementStock(_ context.Context, productID, size, color string, amount int) (domain.StockMap, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("increment amount must be positive, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	current := p.Stock.Available(size, color)
	if current+amount > domain.MaxStockQuantity {
		return nil, domain.StockLimitError(productID, size, color)
	}
	p.Stock.Set(size, color, current+amount)
	return p.Stock.Clone(), nil
}

func (m *MemoryAdapter) CreateOrder(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	order.Items = append([]domain.LineItem(nil), order.Items...)
	m.orders[order.ID] = order
	return nil
}

func (m *MemoryAdapter) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	o.Items = append([]domain.LineItem(nil), o.Items...)
	return &o, nil
}

func (m *MemoryAdapter) UpdateOrderStatus(_ context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if o.Status != from {
		return fmt.Errorf("order %s changed concurrently: %w", id, domain.ErrInvalidTransition)
	}
	o.Status = to
	o.UpdatedAt = at
	m.orders[id] = o
	return nil
}

func (m *MemoryAdapter) MarkStockCommitted(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	o.StockCommitted = true
	o.UpdatedAt = at
	m.orders[id] = o
	return nil
}

func (m *MemoryAdapter) UpdatePaymentStatus(_ context.Context, id string, from, to domain.PaymentStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if o.PaymentStatus != from {
		return fmt.Errorf("order %s changed concurrently: %w", id, domain.ErrInvalidTransition)
	}
	o.PaymentStatus = to
	o.UpdatedAt = at
	m.orders[id] = o
	return nil
}

func (m *MemoryAdapter) DeleteOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	delete(m.orders, id)
	return nil
}

func (m *MemoryAdapter) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	term := strings.ToLower(filter.Search)
	matched := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(o.Customer.Name), term) &&
			!strings.Contains(strings.ToLower(o.Customer.Phone), term) &&
			!strings.Contains(strings.ToLower(o.ID), term) {
			continue
		}
		o.Items = append([]domain.LineItem(nil), o.Items...)
		matched = append(matched, o)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []domain.Order{}, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], nil
}

func (m *MemoryAdapter) SetIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.idempotency[key]; seen {
		return false, nil
	}
	m.idempotency[key] = struct{}{}
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotency, key)
	return nil
}

func (m *MemoryAdapter) GetMaintenance(_ context.Context) (domain.MaintenanceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maintenance, nil
}

func (m *MemoryAdapter) SaveMaintenance(_ context.Context, status domain.MaintenanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maintenance = status
	return nil
}

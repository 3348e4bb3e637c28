package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists a new order together with its line items
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns domain.ErrNotFound for an unknown id
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// UpdateOrderStatus is a compare-and-set on the current status; it returns
	// domain.ErrInvalidTransition when the stored status is no longer from
	UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error

	// MarkStockCommitted records that every line of the order was deducted
	MarkStockCommitted(ctx context.Context, id string, at time.Time) error

	UpdatePaymentStatus(ctx context.Context, id string, from, to domain.PaymentStatus, at time.Time) error

	DeleteOrder(ctx context.Context, id string) error

	// ListOrders applies the filter, newest first
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
}

type ProductCatalog interface {
	// GetProduct returns the product with its current stock map
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

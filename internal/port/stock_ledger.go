package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

// StockLedger is the only path through which stock quantities change.
type StockLedger interface {
	// GetStock reads the stock map straight from the backing store
	GetStock(ctx context.Context, productID string) (domain.StockMap, error)

	// DecrementStock atomically subtracts amount, failing with
	// domain.ErrInsufficientStock instead of going negative
	DecrementStock(ctx context.Context, productID, size, color string, amount int) (domain.StockMap, error)

	// IncrementStock restocks (or compensates a decrement)
	IncrementStock(ctx context.Context, productID, size, color string, amount int) (domain.StockMap, error)
}

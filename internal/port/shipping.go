package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/shopspring/decimal"
)

type ShippingTable interface {
	// ShippingCost returns domain.ErrNotFound for an unknown wilaya
	ShippingCost(ctx context.Context, wilayaID int, method domain.ShippingMethod) (decimal.Decimal, error)

	// Wilaya returns the canonical name for a wilaya id
	Wilaya(id int) (string, bool)
}

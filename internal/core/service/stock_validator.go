package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type stockKey struct {
	productID, size, color string
}

// StockValidator checks requested line items against a fresh read of the
// ledger. It never goes through a cache and never mutates anything.
type StockValidator struct {
	ledger port.StockLedger
	log    *logrus.Entry
}

func NewStockValidator(ledger port.StockLedger, log *logrus.Logger) *StockValidator {
	return &StockValidator{ledger: ledger, log: log.WithField("component", "stock_validator")}
}

// Validate returns one check per item. Lines repeating the same
// product/size/color are judged against their combined quantity. A missing
// product fails only its own items; any other read error aborts.
func (v *StockValidator) Validate(ctx context.Context, items []domain.LineItem) (domain.ValidationResult, error) {
	requested := make(map[stockKey]int, len(items))
	for _, item := range items {
		key := stockKey{item.ProductID, item.Size, item.Color}
		requested[key] = addCapped(requested[key], item.Quantity)
	}

	stocks := make(map[string]domain.StockMap)
	missing := make(map[string]bool)
	for _, item := range items {
		if _, seen := stocks[item.ProductID]; seen || missing[item.ProductID] {
			continue
		}
		stock, err := v.ledger.GetStock(ctx, item.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			v.log.WithField("product_id", item.ProductID).Warn("validated item references unknown product")
			missing[item.ProductID] = true
			continue
		}
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("read stock for %s: %w", item.ProductID, err)
		}
		stocks[item.ProductID] = stock
	}

	result := domain.ValidationResult{Items: make([]domain.ItemCheck, 0, len(items)), OK: true}
	for _, item := range items {
		want := requested[stockKey{item.ProductID, item.Size, item.Color}]
		available := 0
		if stock, ok := stocks[item.ProductID]; ok {
			available = stock.Available(item.Size, item.Color)
		}
		check := domain.ItemCheck{
			Item:      item,
			Requested: want,
			Available: available,
			OK:        want <= domain.MaxStockQuantity && available >= want,
		}
		if !check.OK {
			result.OK = false
		}
		result.Items = append(result.Items, check)
	}
	return result, nil
}

// addCapped sums quantities, saturating one past MaxStockQuantity so a
// combined request can never wrap around to a small or negative number.
func addCapped(total, qty int) int {
	const ceiling = domain.MaxStockQuantity + 1
	if qty < 0 {
		qty = 0
	}
	if total >= ceiling || qty >= ceiling-total {
		return ceiling
	}
	return total + qty
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/cache"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// ProductService serves product pages from a short-lived cache. The stock
// map always comes from the ledger, which is the source of truth.
type ProductService struct {
	catalog port.ProductCatalog
	ledger  port.StockLedger
	cache   *cache.Cache[string, *domain.Product]
	log     *logrus.Entry
}

func NewProductService(catalog port.ProductCatalog, ledger port.StockLedger, ttl time.Duration, log *logrus.Logger) *ProductService {
	entry := log.WithField("component", "product_service")
	return &ProductService{
		catalog: catalog,
		ledger:  ledger,
		cache:   cache.New[string, *domain.Product](ttl, cache.WithLogger(entry)),
		log:     entry,
	}
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.cache.Read(ctx, id, func(ctx context.Context) (*domain.Product, error) {
		p, err := s.catalog.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		stock, err := s.ledger.GetStock(ctx, id)
		if err != nil {
			return nil, err
		}
		p.Stock = stock
		return p, nil
	})
}

// Restock adds units through the ledger and drops the cached product.
func (s *ProductService) Restock(ctx context.Context, id, size, color string, quantity int) (domain.StockMap, error) {
	verr := domain.NewValidationError()
	if size == "" || color == "" {
		verr.Add("variant", "size and color are required")
	}
	if quantity <= 0 {
		verr.Add("quantity", "quantity must be positive")
	} else if quantity > domain.MaxStockQuantity {
		verr.Add("quantity", fmt.Sprintf("quantity must be at most %d", domain.MaxStockQuantity))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	stock, err := s.ledger.IncrementStock(ctx, id, size, color, quantity)
	if err != nil {
		return nil, fmt.Errorf("restock %s: %w", id, err)
	}
	s.Invalidate(id)
	s.log.WithFields(logrus.Fields{"product_id": id, "size": size, "color": color, "quantity": quantity}).Info("restocked")
	return stock, nil
}

func (s *ProductService) Invalidate(productID string) {
	s.cache.Invalidate(productID)
}

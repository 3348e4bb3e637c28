package handler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/shipping"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/cache"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type fixture struct {
	store       *storage.MemoryAdapter
	orders      *service.OrderService
	products    *service.ProductService
	maintenance *service.MaintenanceService
	log         *logrus.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := storage.NewMemoryAdapter()
	store.PutProduct(domain.Product{
		ID:    "tee",
		Name:  "Basic tee",
		Price: decimal.NewFromInt(1500),
		Stock: domain.StockMap{"M": {"Black": 2}},
	})

	table, err := shipping.Default()
	require.NoError(t, err)

	writer := cache.NewWriter(log, 1, 4, time.Second)
	t.Cleanup(writer.Close)

	products := service.NewProductService(store, store, time.Minute, log)
	orders := service.NewOrderService(service.OrderServiceConfig{
		Validator:   service.NewStockValidator(store, log),
		Ledger:      store,
		Orders:      store,
		Shipping:    table,
		Catalog:     store,
		Idempotency: store,
		Products:    products,
		ListTTL:     time.Minute,
		Logger:      log,
	})

	return &fixture{
		store:       store,
		orders:      orders,
		products:    products,
		maintenance: service.NewMaintenanceService(store, writer, time.Minute, log),
		log:         log,
	}
}

func checkout(qty int) domain.CreateOrderRequest {
	return domain.CreateOrderRequest{
		Customer: domain.Customer{
			Name:     "Amine Benali",
			Phone:    "0555123456",
			Address:  "12 rue Didouche Mourad",
			WilayaID: 16,
		},
		Items: []domain.LineItem{
			{ProductID: "tee", Size: "M", Color: "Black", Quantity: qty},
		},
		ShippingMethod: domain.ShippingHome,
	}
}

package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/shipping"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// callLog records the order in which backing-store operations happen.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// mockLedger wraps a real ledger, recording calls and injecting failures.
type mockLedger struct {
	port.StockLedger
	log           *callLog
	getStockCalls atomic.Int32
	failDecrement map[string]error
	failIncrement error
	failGetStock  error

	// beforeDecrement runs ahead of each decrement, before failures are injected.
	beforeDecrement func(productID string)
}

func (m *mockLedger) GetStock(ctx context.Context, productID string) (domain.StockMap, error) {
	m.getStockCalls.Add(1)
	m.log.add("get:" + productID)
	if m.failGetStock != nil {
		return nil, m.failGetStock
	}
	return m.StockLedger.GetStock(ctx, productID)
}

func (m *mockLedger) DecrementStock(ctx context.Context, productID, size, color string, amount int) (domain.StockMap, error) {
	m.log.add(fmt.Sprintf("decrement:%s:%d", productID, amount))
	if m.beforeDecrement != nil {
		m.beforeDecrement(productID)
	}
	if err, ok := m.failDecrement[productID]; ok {
		return nil, err
	}
	return m.StockLedger.DecrementStock(ctx, productID, size, color, amount)
}

func (m *mockLedger) IncrementStock(ctx context.Context, productID, size, color string, amount int) (domain.StockMap, error) {
	m.log.add(fmt.Sprintf("increment:%s:%d", productID, amount))
	if m.failIncrement != nil {
		return nil, m.failIncrement
	}
	return m.StockLedger.IncrementStock(ctx, productID, size, color, amount)
}

type mockOrderRepo struct {
	port.OrderRepository
	log        *callLog
	failCreate error
	failMark   error
}

func (m *mockOrderRepo) CreateOrder(ctx context.Context, order domain.Order) error {
	m.log.add("create:" + order.ID)
	if m.failCreate != nil {
		return m.failCreate
	}
	return m.OrderRepository.CreateOrder(ctx, order)
}

func (m *mockOrderRepo) MarkStockCommitted(ctx context.Context, id string, at time.Time) error {
	m.log.add("commit:" + id)
	if m.failMark != nil {
		return m.failMark
	}
	return m.OrderRepository.MarkStockCommitted(ctx, id, at)
}

type testEnv struct {
	store    *storage.MemoryAdapter
	ledger   *mockLedger
	repo     *mockOrderRepo
	calls    *callLog
	products *ProductService
	svc      *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemoryAdapter()
	store.PutProduct(domain.Product{
		ID:    "tee",
		Name:  "Basic tee",
		Price: decimal.NewFromInt(1500),
		Stock: domain.StockMap{"M": {"Black": 2, "White": 5}, "L": {"Black": 1}},
	})
	store.PutProduct(domain.Product{
		ID:    "cap",
		Name:  "Cap",
		Price: decimal.NewFromInt(900),
		Stock: domain.StockMap{"U": {"Red": 3}},
	})

	table, err := shipping.Default()
	require.NoError(t, err)

	calls := &callLog{}
	ledger := &mockLedger{StockLedger: store, log: calls, failDecrement: map[string]error{}}
	repo := &mockOrderRepo{OrderRepository: store, log: calls}
	log := quietLogger()
	products := NewProductService(store, ledger, time.Minute, log)

	svc := NewOrderService(OrderServiceConfig{
		Validator:   NewStockValidator(ledger, log),
		Ledger:      ledger,
		Orders:      repo,
		Shipping:    table,
		Idempotency: store,
		Products:    products,
		ListTTL:     time.Minute,
		Logger:      log,
	})

	var seq atomic.Int64
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base.Add(time.Duration(seq.Add(1)) * time.Second) }

	return &testEnv{store: store, ledger: ledger, repo: repo, calls: calls, products: products, svc: svc}
}

func (e *testEnv) stock(t *testing.T, productID string) domain.StockMap {
	t.Helper()
	stock, err := e.store.GetStock(context.Background(), productID)
	require.NoError(t, err)
	return stock
}

func checkoutRequest(items ...domain.LineItem) domain.CreateOrderRequest {
	return domain.CreateOrderRequest{
		Customer: domain.Customer{
			Name:       "Amine Benali",
			Phone:      "0555123456",
			Address:    "12 rue Didouche Mourad",
			City:       "Alger Centre",
			WilayaID:   16,
			WilayaName: "Alger",
		},
		Items:          items,
		ShippingMethod: domain.ShippingHome,
	}
}

func line(productID, size, color string, qty int) domain.LineItem {
	return domain.LineItem{ProductID: productID, Size: size, Color: color, Quantity: qty, UnitPrice: decimal.NewFromInt(1500)}
}

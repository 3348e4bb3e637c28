package storage

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

// seedMySQLProduct creates a product with a unique id and removes it afterwards.
func seedMySQLProduct(t *testing.T, db *sql.DB, stock domain.StockMap) (*MySQLAdapter, string) {
	t.Helper()
	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	id := "test-" + uuid.NewString()[:8]

	require.NoError(t, SeedMySQL(ctx, adapter, []domain.Product{{
		ID:    id,
		Name:  "Test product",
		Price: decimal.RequireFromString("1500.00"),
		Stock: stock,
	}}))
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM product_stock WHERE product_id = ?`, id)
		db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	})
	return adapter, id
}

func TestMySQL_DecrementStock(t *testing.T) {
	db := getMySQLDB(t)
	adapter, id := seedMySQLProduct(t, db, domain.StockMap{"M": {"Black": 2}})
	ctx := context.Background()

	stock, err := adapter.DecrementStock(ctx, id, "M", "Black", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Available("M", "Black"))

	_, err = adapter.DecrementStock(ctx, id, "M", "Black", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = adapter.DecrementStock(ctx, id, "XL", "Green", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = adapter.DecrementStock(ctx, "no-such-product", "M", "Black", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMySQL_ConcurrentDecrementNeverOversells(t *testing.T) {
	db := getMySQLDB(t)
	adapter, id := seedMySQLProduct(t, db, domain.StockMap{"M": {"Black": 5}})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := adapter.DecrementStock(ctx, id, "M", "Black", 1); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, success.Load())
	stock, err := adapter.GetStock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Available("M", "Black"))
}

func TestMySQL_IncrementStock(t *testing.T) {
	db := getMySQLDB(t)
	adapter, id := seedMySQLProduct(t, db, domain.StockMap{"M": {"Black": 1}})
	ctx := context.Background()

	stock, err := adapter.IncrementStock(ctx, id, "L", "White", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, stock.Available("L", "White"))
	assert.Equal(t, 1, stock.Available("M", "Black"))

	_, err = adapter.IncrementStock(ctx, id, "M", "Black", domain.MaxStockQuantity)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = adapter.IncrementStock(ctx, "no-such-product", "M", "Black", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMySQL_GetProduct(t *testing.T) {
	db := getMySQLDB(t)
	adapter, id := seedMySQLProduct(t, db, domain.StockMap{"M": {"Black": 3}})

	p, err := adapter.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "1500", p.Price.String())
	assert.Equal(t, 3, p.Stock.Available("M", "Black"))

	_, err = adapter.GetProduct(context.Background(), "no-such-product")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func newMySQLOrder(t *testing.T, db *sql.DB, adapter *MySQLAdapter, productID, name string) domain.Order {
	t.Helper()
	order := domain.NewOrder(uuid.NewString(), domain.Customer{
		Name:     name,
		Phone:    "0555123456",
		Address:  "12 rue Didouche Mourad",
		WilayaID: 16,
	}, []domain.LineItem{
		{ProductID: productID, Size: "M", Color: "Black", Quantity: 2, UnitPrice: decimal.NewFromInt(1500)},
	}, domain.ShippingHome, decimal.NewFromInt(400), "leave at the door", time.Now().UTC().Truncate(time.Second))

	require.NoError(t, adapter.CreateOrder(context.Background(), order))
	t.Cleanup(func() {
		db.ExecContext(context.Background(), `DELETE FROM order_items WHERE order_id = ?`, order.ID)
		db.ExecContext(context.Background(), `DELETE FROM orders WHERE id = ?`, order.ID)
	})
	return order
}

func TestMySQL_OrderRoundTrip(t *testing.T) {
	db := getMySQLDB(t)
	adapter, id := seedMySQLProduct(t, db, domain.StockMap{"M": {"Black": 3}})
	order := newMySQLOrder(t, db, adapter, id, "Amine Benali")

	got, err := adapter.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "3400", got.Total.String())
	assert.Equal(t, "3000", got.Subtotal.String())
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Equal(t, "leave at the door", got.Notes)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.False(t, got.StockCommitted)

	require.NoError(t, adapter.MarkStockCommitted(context.Background(), order.ID, time.Now().UTC()))
	got, err = adapter.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, got.StockCommitted)
	assert.ErrorIs(t, adapter.MarkStockCommitted(context.Background(), "missing", time.Now().UTC()), domain.ErrNotFound)

	_, err = adapter.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMySQL_UpdateOrderStatusIsConditional(t *testing.T) {
	db := getMySQLDB(t)
	adapter, id := seedMySQLProduct(t, db, domain.StockMap{"M": {"Black": 3}})
	order := newMySQLOrder(t, db, adapter, id, "Amine Benali")
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, adapter.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusProcessing, now))

	err := adapter.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled, now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = adapter.UpdateOrderStatus(ctx, "missing", domain.OrderStatusPending, domain.OrderStatusProcessing, now)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, adapter.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusPending, domain.PaymentStatusPaid, now))
	got, err := adapter.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, got.Status)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
}

func TestMySQL_ListOrdersSearch(t *testing.T) {
	db := getMySQLDB(t)
	adapter, id := seedMySQLProduct(t, db, domain.StockMap{"M": {"Black": 3}})
	marker := uuid.NewString()[:6]
	first := newMySQLOrder(t, db, adapter, id, "Zed "+marker)
	second := newMySQLOrder(t, db, adapter, id, "zed_"+marker)

	found, err := adapter.ListOrders(context.Background(), domain.OrderFilter{Search: "ZED " + marker, Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, first.ID, found[0].ID)
	require.Len(t, found[0].Items, 1)

	found, err = adapter.ListOrders(context.Background(), domain.OrderFilter{Search: "_" + marker, Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, second.ID, found[0].ID)
}

func TestMySQL_DeleteOrder(t *testing.T) {
	db := getMySQLDB(t)
	adapter, id := seedMySQLProduct(t, db, domain.StockMap{"M": {"Black": 3}})
	order := newMySQLOrder(t, db, adapter, id, "Amine Benali")

	require.NoError(t, adapter.DeleteOrder(context.Background(), order.ID))
	assert.ErrorIs(t, adapter.DeleteOrder(context.Background(), order.ID), domain.ErrNotFound)
}

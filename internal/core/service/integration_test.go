package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/shipping"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type integrationEnv struct {
	redis *redis.Client
	mysql *sql.DB
	cache *storage.RedisAdapter
	db    *storage.MySQLAdapter
	svc   *service.OrderService
}

func setupIntegrationEnv(t *testing.T) *integrationEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(context.Background(), db))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	rates, err := shipping.Default()
	require.NoError(t, err)

	cache := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	products := service.NewProductService(mysqlAdapter, cache, time.Second, log)

	return &integrationEnv{
		redis: rdb,
		mysql: db,
		cache: cache,
		db:    mysqlAdapter,
		svc: service.NewOrderService(service.OrderServiceConfig{
			Validator:   service.NewStockValidator(cache, log),
			Ledger:      cache,
			Orders:      mysqlAdapter,
			Shipping:    rates,
			Catalog:     mysqlAdapter,
			Idempotency: cache,
			Products:    products,
			ListTTL:     time.Second,
			Logger:      log,
		}),
	}
}

// seed creates a product in MySQL, mirrors its stock into Redis and
// removes everything the test created afterwards.
func (e *integrationEnv) seed(t *testing.T, qty int) string {
	t.Helper()
	ctx := context.Background()
	id := "it-" + uuid.NewString()[:8]

	require.NoError(t, storage.SeedMySQL(ctx, e.db, []domain.Product{{
		ID:    id,
		Name:  "Integration tee",
		Price: decimal.NewFromInt(1500),
		Stock: domain.StockMap{"M": {"Black": qty}},
	}}))
	_, err := storage.MirrorStockToRedis(ctx, e.db, e.cache)
	require.NoError(t, err)

	t.Cleanup(func() {
		e.redis.Del(ctx, "stock:"+id)
		e.mysql.ExecContext(ctx, `DELETE FROM orders WHERE id IN (SELECT order_id FROM order_items WHERE product_id = ?)`, id)
		e.mysql.ExecContext(ctx, `DELETE FROM order_items WHERE product_id = ?`, id)
		e.mysql.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	})
	return id
}

func request(productID, requestID string, qty int) domain.CreateOrderRequest {
	return domain.CreateOrderRequest{
		RequestID: requestID,
		Customer: domain.Customer{
			Name:     "Integration Customer",
			Phone:    "0555123456",
			Address:  "12 rue Didouche Mourad",
			WilayaID: 16,
		},
		Items:          []domain.LineItem{{ProductID: productID, Size: "M", Color: "Black", Quantity: qty}},
		ShippingMethod: domain.ShippingHome,
	}
}

func (e *integrationEnv) redisStock(t *testing.T, productID string) int {
	t.Helper()
	stock, err := e.cache.GetStock(context.Background(), productID)
	require.NoError(t, err)
	return stock.Available("M", "Black")
}

func TestIntegration_ConcurrentCheckouts(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()
	productID := env.seed(t, 10)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
		soldOut atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.CreateOrder(ctx, request(productID, uuid.NewString(), 1))
			switch {
			case err == nil:
				success.Add(1)
			case assert.ErrorIs(t, err, domain.ErrInsufficientStock):
				soldOut.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, success.Load())
	assert.EqualValues(t, 10, soldOut.Load())
	assert.Equal(t, 0, env.redisStock(t, productID))

	var pending int
	require.NoError(t, env.mysql.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT o.id) FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE i.product_id = ? AND o.status = 'pending'`, productID).Scan(&pending))
	assert.Equal(t, 10, pending)
}

func TestIntegration_IdempotencyPreventsDoubleOrder(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()
	productID := env.seed(t, 10)
	requestID := "same-request-id-" + uuid.NewString()
	t.Cleanup(func() { env.redis.Del(ctx, "idempotency:order:"+requestID) })

	_, err := env.svc.CreateOrder(ctx, request(productID, requestID, 1))
	require.NoError(t, err)

	_, err = env.svc.CreateOrder(ctx, request(productID, requestID, 1))
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, 9, env.redisStock(t, productID))
}

func TestIntegration_CancelRestoresStock(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()
	productID := env.seed(t, 3)

	order, err := env.svc.CreateOrder(ctx, request(productID, "", 2))
	require.NoError(t, err)
	assert.Equal(t, 1, env.redisStock(t, productID))

	require.NoError(t, env.svc.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled))
	assert.Equal(t, 3, env.redisStock(t, productID))

	stored, err := env.db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
}

func TestIntegration_UnknownCatalogProductLeavesStockAlone(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()

	// Stock exists in Redis but the product was never added to the catalog.
	id := fmt.Sprintf("orphan-%s", uuid.NewString()[:8])
	require.NoError(t, env.cache.SetStock(ctx, id, domain.StockMap{"M": {"Black": 4}}))
	t.Cleanup(func() { env.redis.Del(ctx, "stock:"+id) })

	_, err := env.svc.CreateOrder(ctx, request(id, "", 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 4, env.redisStock(t, id))
}

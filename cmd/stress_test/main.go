package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/adapter/shipping"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/port"
)

const (
	redisAddr     = "localhost:6379"
	productID     = "stress-tee"
	size          = "M"
	color         = "Black"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()
	log := logging.New("warn")

	// Orders stay in memory; only the stock ledger is exercised in Redis.
	mem := storage.NewMemoryAdapter()
	mem.PutProduct(domain.Product{
		ID:    productID,
		Name:  "Stress tee",
		Price: decimal.NewFromInt(1500),
		Stock: domain.StockMap{size: {color: initialStock}},
	})

	var ledger port.StockLedger = mem
	backend := "memory"

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err == nil {
		redisAdapter := storage.NewRedisAdapter(rdb)
		if err := redisAdapter.SetStock(ctx, productID, domain.StockMap{size: {color: initialStock}}); err != nil {
			log.WithError(err).Fatal("failed to set stock")
		}
		ledger = redisAdapter
		backend = "redis"
	} else {
		log.WithError(err).Warn("redis unreachable, running against the in-memory ledger")
	}

	rates, err := shipping.Default()
	if err != nil {
		log.WithError(err).Fatal("failed to load shipping rates")
	}

	orderService := service.NewOrderService(service.OrderServiceConfig{
		Validator: service.NewStockValidator(ledger, log),
		Ledger:    ledger,
		Orders:    mem,
		Shipping:  rates,
		Catalog:   mem,
		ListTTL:   time.Second,
		Logger:    log,
	})

	var (
		successCount      atomic.Int32
		soldOutCount      atomic.Int32
		unreconciledCount atomic.Int32
		otherCount        atomic.Int32
	)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := orderService.CreateOrder(ctx, domain.CreateOrderRequest{
				RequestID: fmt.Sprintf("stress-%d", n),
				Customer: domain.Customer{
					Name:     fmt.Sprintf("Customer %d", n),
					Phone:    fmt.Sprintf("055%07d", n),
					Address:  "1 rue Larbi Ben M'hidi",
					WilayaID: 16,
				},
				Items:          []domain.LineItem{{ProductID: productID, Size: size, Color: color, Quantity: 1}},
				ShippingMethod: domain.ShippingHome,
			})

			var pf *domain.PartialFailureError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &pf) && !pf.Reconciled:
				unreconciledCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.WithError(err).Error("unexpected checkout failure")
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Ledger:           %s\n", backend)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Unreconciled:     %d\n", unreconciledCount.Load())
	fmt.Printf("Other failures:   %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		failed = true
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	stock, err := ledger.GetStock(ctx, productID)
	if err != nil {
		log.WithError(err).Fatal("failed to read final stock")
	}
	finalStock := stock.Available(size, color)
	fmt.Printf("Final Stock: %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		failed = true
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}

	if failed {
		os.Exit(1)
	}
}

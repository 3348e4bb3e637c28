package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/rpc"
	"github.com/rl1809/storefront/internal/adapter/shipping"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/cache"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/port"
)

// backends groups the store implementations selected by configuration.
type backends struct {
	ledger      port.StockLedger
	catalog     port.ProductCatalog
	orders      port.OrderRepository
	idempotency port.IdempotencyStore
	maintenance port.MaintenanceStore
	closers     []func() error
}

func (b *backends) close(log *logrus.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.WithError(err).Warn("failed to close backend")
		}
	}
}

func main() {
	cfg, err := config.Load(logging.New("info"))
	if err != nil {
		logging.New("info").WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open backends")
	}
	defer b.close(log)

	rates, err := shipping.Load(cfg.ShippingRatesFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load shipping rates")
	}

	writer := cache.NewWriter(log.WithField("component", "writer"), cfg.WriterWorkers, cfg.WriterQueueSize, cfg.WriterTimeout)
	log.Printf("started %d background writers", cfg.WriterWorkers)

	productService := service.NewProductService(b.catalog, b.ledger, cfg.ProductCacheTTL, log)
	orderService := service.NewOrderService(service.OrderServiceConfig{
		Validator:   service.NewStockValidator(b.ledger, log),
		Ledger:      b.ledger,
		Orders:      b.orders,
		Shipping:    rates,
		Catalog:     b.catalog,
		Idempotency: b.idempotency,
		Products:    productService,
		ListTTL:     cfg.OrderListCacheTTL,
		Logger:      log,
	})
	maintenanceService := service.NewMaintenanceService(b.maintenance, writer, cfg.MaintenanceCacheTTL, log)

	grpcHandler := handler.NewGRPCHandler(orderService, log)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcHandler.UnaryLogger()))
	rpc.RegisterOrderServiceServer(grpcServer, grpcHandler)

	httpHandler := handler.NewHTTPHandler(orderService, productService, maintenanceService, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		log.Infof("gRPC server listening on %s", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		log.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("HTTP shutdown incomplete")
		}
		log.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server exited with error")
	}

	writer.Close()
	log.Info("background writers drained")
}

func openBackends(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*backends, error) {
	if cfg.StockBackend == config.BackendMemory {
		mem := storage.NewMemoryAdapter()
		if cfg.SeedFile != "" {
			products, err := storage.LoadSeed(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			for _, p := range products {
				mem.PutProduct(p)
			}
			log.Infof("seeded %d products into memory", len(products))
		}
		log.Warn("using in-memory stores, data is lost on restart")
		return &backends{ledger: mem, catalog: mem, orders: mem, idempotency: mem, maintenance: mem}, nil
	}

	b := &backends{}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	db.SetMaxIdleConns(cfg.MySQLMaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	b.closers = append(b.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		b.close(log)
		return nil, err
	}
	log.Info("connected to mysql")

	if err := storage.Migrate(ctx, db); err != nil {
		b.close(log)
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	})
	b.closers = append(b.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		b.close(log)
		return nil, err
	}
	log.Info("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	if cfg.SeedFile != "" {
		products, err := storage.LoadSeed(cfg.SeedFile)
		if err != nil {
			b.close(log)
			return nil, err
		}
		if err := storage.SeedMySQL(ctx, mysqlAdapter, products); err != nil {
			b.close(log)
			return nil, err
		}
		log.Infof("seeded %d products into mysql", len(products))
	}

	b.catalog = mysqlAdapter
	b.orders = mysqlAdapter
	b.idempotency = redisAdapter
	b.maintenance = redisAdapter
	b.ledger = mysqlAdapter

	if cfg.StockBackend == config.BackendRedis {
		n, err := storage.MirrorStockToRedis(ctx, mysqlAdapter, redisAdapter)
		if err != nil {
			b.close(log)
			return nil, err
		}
		log.Infof("mirrored stock for %d new products into redis", n)
		b.ledger = redisAdapter
	}

	return b, nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is read from STOREFRONT_* environment variables.
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`

	// StockBackend selects the stock ledger: mysql, redis or memory.
	// Orders live in MySQL unless the backend is memory.
	StockBackend string `envconfig:"STOCK_BACKEND" default:"mysql"`

	MySQLDSN      string `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/storefront?parseTime=true"`
	MySQLMaxOpen  int    `envconfig:"MYSQL_MAX_OPEN" default:"50"`
	MySQLMaxIdle  int    `envconfig:"MYSQL_MAX_IDLE" default:"25"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisPoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"100"`

	WriterWorkers   int           `envconfig:"WRITER_WORKERS" default:"10"`
	WriterQueueSize int           `envconfig:"WRITER_QUEUE_SIZE" default:"10000"`
	WriterTimeout   time.Duration `envconfig:"WRITER_TIMEOUT" default:"5s"`

	ProductCacheTTL     time.Duration `envconfig:"PRODUCT_CACHE_TTL" default:"30s"`
	OrderListCacheTTL   time.Duration `envconfig:"ORDER_LIST_CACHE_TTL" default:"5s"`
	MaintenanceCacheTTL time.Duration `envconfig:"MAINTENANCE_CACHE_TTL" default:"10s"`

	// ShippingRatesFile overrides the built-in wilaya rate table.
	ShippingRatesFile string `envconfig:"SHIPPING_RATES_FILE"`
	// SeedFile is a YAML product catalog loaded into the stores at startup.
	SeedFile string `envconfig:"SEED_FILE"`

	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

const envPrefix = "STOREFRONT"

// Load reads an optional .env file and then the environment.
func Load(logger *logrus.Logger) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		logger.Warnf("Error loading .env file (but continuing): %v", err)
	} else if err == nil {
		logger.Info("Loaded configuration from .env file")
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StockBackend {
	case BackendMySQL, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown stock backend %q (want mysql, redis or memory)", c.StockBackend)
	}
	if c.WriterWorkers <= 0 {
		return fmt.Errorf("writer workers must be positive, got %d", c.WriterWorkers)
	}
	if c.WriterQueueSize < 0 {
		return fmt.Errorf("writer queue size cannot be negative, got %d", c.WriterQueueSize)
	}
	return nil
}

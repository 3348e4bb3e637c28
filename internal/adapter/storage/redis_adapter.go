package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	stockKeyPrefix       = "stock:"
	idempotencyKeyPrefix = "idempotency:"
	maintenanceKey       = "maintenance_status"
	idempotencyKeyTTL    = 24 * time.Hour

	// productMarkerField keeps the hash alive when every quantity is zero.
	productMarkerField = "_product"
	fieldSeparator     = "\x1f"
)

var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local field = ARGV[1]
local amount = tonumber(ARGV[2])

if redis.call('EXISTS', key) == 0 then
	return -1
end

local current = tonumber(redis.call('HGET', key, field) or '0')
if current < amount then
	return -2
end

redis.call('HINCRBY', key, field, -amount)
return current - amount
`)

var incrementStockScript = redis.NewScript(`
local key = KEYS[1]
local field = ARGV[1]
local amount = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

if redis.call('EXISTS', key) == 0 then
	return -1
end

local current = tonumber(redis.call('HGET', key, field) or '0')
if current + amount > max then
	return -2
end

return redis.call('HINCRBY', key, field, amount)
`)

// RedisAdapter keeps stock hashes, idempotency keys and the maintenance flag.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func stockKey(productID string) string {
	return stockKeyPrefix + productID
}

func stockField(size, color string) string {
	return size + fieldSeparator + color
}

func (r *RedisAdapter) GetStock(ctx context.Context, productID string) (domain.StockMap, error) {
	fields, err := r.client.HGetAll(ctx, stockKey(productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall stock: %w: %w", domain.ErrBackingStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	stock := make(domain.StockMap)
	for field, raw := range fields {
		size, color, ok := strings.Cut(field, fieldSeparator)
		if !ok {
			continue
		}
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse stock %s/%s: %w", size, color, err)
		}
		stock.Set(size, color, qty)
	}
	return stock, nil
}

// DecrementStock runs a Lua script so the check and the decrement are atomic.
func (r *RedisAdapter) DecrementStock(ctx context.Context, productID, size, color string, amount int) (domain.StockMap, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("decrement amount must be positive, got %d", amount)
	}

	result, err := decrementStockScript.Run(ctx, r.client, []string{stockKey(productID)}, stockField(size, color), amount).Int()
	if err != nil {
		return nil, fmt.Errorf("decrement stock: %w: %w", domain.ErrBackingStoreUnavailable, err)
	}
	switch result {
	case -1:
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	case -2:
		return nil, fmt.Errorf("product %s %s/%s: %w", productID, size, color, domain.ErrInsufficientStock)
	}

	return r.GetStock(ctx, productID)
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, productID, size, color string, amount int) (domain.StockMap, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("increment amount must be positive, got %d", amount)
	}

	result, err := incrementStockScript.Run(ctx, r.client, []string{stockKey(productID)},
		stockField(size, color), amount, domain.MaxStockQuantity).Int()
	if err != nil {
		return nil, fmt.Errorf("increment stock: %w: %w", domain.ErrBackingStoreUnavailable, err)
	}
	switch result {
	case -1:
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	case -2:
		return nil, domain.StockLimitError(productID, size, color)
	}

	return r.GetStock(ctx, productID)
}

// SetStock replaces the whole stock map of a product; used to sync from MySQL.
func (r *RedisAdapter) SetStock(ctx context.Context, productID string, stock domain.StockMap) error {
	values := map[string]any{productMarkerField: 1}
	for size, colors := range stock {
		for color, qty := range colors {
			if qty < 0 {
				return fmt.Errorf("stock quantity cannot be negative, got %d", qty)
			}
			values[stockField(size, color)] = qty
		}
	}

	key := stockKey(productID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		return nil
	})
	return err
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w: %w", domain.ErrBackingStoreUnavailable, err)
	}
	return nil
}

func (r *RedisAdapter) GetMaintenance(ctx context.Context) (domain.MaintenanceStatus, error) {
	raw, err := r.client.Get(ctx, maintenanceKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MaintenanceStatus{}, nil
	}
	if err != nil {
		return domain.MaintenanceStatus{}, fmt.Errorf("get maintenance: %w: %w", domain.ErrBackingStoreUnavailable, err)
	}

	var status domain.MaintenanceStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return domain.MaintenanceStatus{}, fmt.Errorf("decode maintenance: %w", err)
	}
	return status, nil
}

func (r *RedisAdapter) SaveMaintenance(ctx context.Context, status domain.MaintenanceStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, maintenanceKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("save maintenance: %w: %w", domain.ErrBackingStoreUnavailable, err)
	}
	return nil
}

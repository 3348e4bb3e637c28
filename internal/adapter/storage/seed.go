package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/storefront/internal/core/domain"
)

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID    string                    `yaml:"id"`
	Name  string                    `yaml:"name"`
	Price decimal.Decimal           `yaml:"price"`
	Stock map[string]map[string]int `yaml:"stock"`
}

// LoadSeed reads a product catalog with initial stock from a YAML file.
func LoadSeed(path string) ([]domain.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) ([]domain.Product, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(f.Products))
	products := make([]domain.Product, 0, len(f.Products))
	for _, sp := range f.Products {
		if sp.ID == "" {
			return nil, fmt.Errorf("seed product without id")
		}
		if seen[sp.ID] {
			return nil, fmt.Errorf("seed product %s listed twice", sp.ID)
		}
		seen[sp.ID] = true
		if sp.Price.IsNegative() {
			return nil, fmt.Errorf("seed product %s: negative price", sp.ID)
		}

		stock := make(domain.StockMap)
		for size, colors := range sp.Stock {
			for color, qty := range colors {
				if qty < 0 || qty > domain.MaxStockQuantity {
					return nil, fmt.Errorf("seed product %s %s/%s: quantity %d out of range", sp.ID, size, color, qty)
				}
				stock.Set(size, color, qty)
			}
		}
		products = append(products, domain.Product{ID: sp.ID, Name: sp.Name, Price: sp.Price, Stock: stock})
	}
	return products, nil
}

// SeedMySQL upserts products and overwrites their stock rows.
func SeedMySQL(ctx context.Context, m *MySQLAdapter, products []domain.Product) error {
	for _, p := range products {
		if err := m.UpsertProduct(ctx, p); err != nil {
			return err
		}
		for size, colors := range p.Stock {
			for color, qty := range colors {
				if err := m.SetStock(ctx, p.ID, size, color, qty); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// MirrorStockToRedis copies stock maps from MySQL into Redis for products
// Redis does not hold yet; existing hashes are left alone. Returns the
// number copied.
func MirrorStockToRedis(ctx context.Context, m *MySQLAdapter, r *RedisAdapter) (int, error) {
	ids, err := m.ProductIDs(ctx)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, id := range ids {
		_, err := r.GetStock(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return copied, err
		}

		stock, err := m.GetStock(ctx, id)
		if err != nil {
			return copied, err
		}
		if err := r.SetStock(ctx, id, stock); err != nil {
			return copied, fmt.Errorf("mirror stock %s: %w", id, err)
		}
		copied++
	}
	return copied, nil
}

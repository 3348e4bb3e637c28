// Package shipping serves the wilaya shipping-price table.
package shipping

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/storefront/internal/core/domain"
)

//go:embed rates.yaml
var defaultRates []byte

type Rate struct {
	ID   int             `yaml:"id"`
	Name string          `yaml:"name"`
	Home decimal.Decimal `yaml:"home"`
	Desk decimal.Decimal `yaml:"desk"`
}

type file struct {
	Wilayas []Rate `yaml:"wilayas"`
}

// Table is immutable after construction.
type Table struct {
	rates map[int]Rate
}

// Default returns the table compiled into the binary.
func Default() (*Table, error) {
	return Parse(defaultRates)
}

// Load reads a table from path, falling back to the embedded one when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shipping table: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse shipping table: %w", err)
	}
	t := &Table{rates: make(map[int]Rate, len(f.Wilayas))}
	for _, r := range f.Wilayas {
		if r.Home.IsNegative() || r.Desk.IsNegative() {
			return nil, fmt.Errorf("wilaya %d: negative shipping price", r.ID)
		}
		if _, dup := t.rates[r.ID]; dup {
			return nil, fmt.Errorf("wilaya %d listed twice", r.ID)
		}
		t.rates[r.ID] = r
	}
	return t, nil
}

func (t *Table) ShippingCost(_ context.Context, wilayaID int, method domain.ShippingMethod) (decimal.Decimal, error) {
	r, ok := t.rates[wilayaID]
	if !ok {
		return decimal.Zero, fmt.Errorf("wilaya %d: %w", wilayaID, domain.ErrNotFound)
	}
	switch method {
	case domain.ShippingHome:
		return r.Home, nil
	case domain.ShippingDesk:
		return r.Desk, nil
	}
	return decimal.Zero, fmt.Errorf("unknown shipping method %q", method)
}

// Wilaya returns the configured name for id.
func (t *Table) Wilaya(id int) (string, bool) {
	r, ok := t.rates[id]
	return r.Name, ok
}

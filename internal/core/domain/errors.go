package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrBackingStoreUnavailable = errors.New("backing store unavailable")
	ErrDuplicateRequest        = errors.New("duplicate request")
)

// ValidationError carries per-field messages for malformed customer input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = msg
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StockLimitError reports a restock that would push one variant past
// MaxStockQuantity.
func StockLimitError(productID, size, color string) *ValidationError {
	verr := NewValidationError()
	verr.Add("quantity", fmt.Sprintf("restock of %s %s/%s would exceed %d units", productID, size, color, MaxStockQuantity))
	return verr
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InsufficientStockError lists the items that could not be satisfied.
type InsufficientStockError struct {
	Shortfalls []ItemCheck
}

func (e *InsufficientStockError) Error() string {
	msgs := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		msgs = append(msgs, s.Message())
	}
	return fmt.Sprintf("insufficient stock: %s", strings.Join(msgs, "; "))
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PartialFailureError means the order record was persisted but stock
// deduction did not complete. Reconciled is true when compensation restored
// every decremented line and the order was marked cancelled.
type PartialFailureError struct {
	OrderID    string
	Cause      error
	Reconciled bool
}

func (e *PartialFailureError) Error() string {
	state := "needs manual reconciliation"
	if e.Reconciled {
		state = "compensated and cancelled"
	}
	return fmt.Sprintf("order %s partially failed (%s): %v", e.OrderID, state, e.Cause)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}

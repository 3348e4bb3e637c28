package rpc

import (
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Code names a domain failure on the wire.
type Code string

const (
	CodeValidation        Code = "validation"
	CodeInsufficientStock Code = "insufficient_stock"
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeDuplicateRequest  Code = "duplicate_request"
	CodeUnavailable       Code = "unavailable"
	CodeInternal          Code = "internal"
)

// CodeOf classifies err. A partial failure is classified by its cause.
func CodeOf(err error) Code {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return CodeValidation
	case errors.Is(err, domain.ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, domain.ErrDuplicateRequest):
		return CodeDuplicateRequest
	case errors.Is(err, domain.ErrBackingStoreUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// failure is the decoded form of a Success=false response.
type failure struct {
	code        Code
	message     string
	fieldErrors map[string]string
	shortfalls  []domain.ItemCheck
	orderID     string
	reconciled  bool
}

// err rebuilds a domain error so callers can keep using errors.Is/As.
func (f failure) err() error {
	var base error
	switch f.code {
	case CodeValidation:
		verr := domain.NewValidationError()
		for field, msg := range f.fieldErrors {
			verr.Add(field, msg)
		}
		if len(verr.Fields) == 0 {
			verr.Add("request", f.message)
		}
		base = verr
	case CodeInsufficientStock:
		if len(f.shortfalls) > 0 {
			base = &domain.InsufficientStockError{Shortfalls: f.shortfalls}
		} else {
			base = fmt.Errorf("%s: %w", f.message, domain.ErrInsufficientStock)
		}
	case CodeNotFound:
		base = fmt.Errorf("%s: %w", f.message, domain.ErrNotFound)
	case CodeInvalidTransition:
		base = fmt.Errorf("%s: %w", f.message, domain.ErrInvalidTransition)
	case CodeDuplicateRequest:
		base = fmt.Errorf("%s: %w", f.message, domain.ErrDuplicateRequest)
	case CodeUnavailable:
		base = fmt.Errorf("%s: %w", f.message, domain.ErrBackingStoreUnavailable)
	default:
		base = fmt.Errorf("order service: %s", f.message)
	}

	if f.orderID != "" {
		return &domain.PartialFailureError{OrderID: f.orderID, Cause: base, Reconciled: f.reconciled}
	}
	return base
}

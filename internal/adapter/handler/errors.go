package handler

import (
	"errors"
	"net/http"

	"github.com/rl1809/storefront/internal/core/domain"
)

// statusFor maps domain failures to HTTP status codes. A partial failure
// that was fully compensated is reported by its cause.
func statusFor(err error) int {
	var (
		verr *domain.ValidationError
		pf   *domain.PartialFailureError
	)
	switch {
	case errors.As(err, &pf) && !pf.Reconciled:
		return http.StatusInternalServerError
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBackingStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the error text safe to send to a client.
func publicMessage(err error) string {
	var (
		verr *domain.ValidationError
		ise  *domain.InsufficientStockError
		pf   *domain.PartialFailureError
	)
	switch {
	case errors.As(err, &pf) && !pf.Reconciled:
		return "order could not be completed, contact support with order id " + pf.OrderID
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &ise):
		return ise.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		return "sold out"
	case errors.Is(err, domain.ErrNotFound):
		return "not found"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate request"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid status transition"
	case errors.Is(err, domain.ErrBackingStoreUnavailable):
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}

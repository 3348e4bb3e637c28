package rpc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rl1809/storefront/internal/core/domain"
)

func TestCodeOf(t *testing.T) {
	verr := domain.NewValidationError()
	verr.Add("phone", "bad")

	cases := []struct {
		err  error
		want Code
	}{
		{verr, CodeValidation},
		{&domain.InsufficientStockError{}, CodeInsufficientStock},
		{fmt.Errorf("order x: %w", domain.ErrNotFound), CodeNotFound},
		{domain.ErrInvalidTransition, CodeInvalidTransition},
		{domain.ErrDuplicateRequest, CodeDuplicateRequest},
		{domain.ErrBackingStoreUnavailable, CodeUnavailable},
		{&domain.PartialFailureError{OrderID: "o1", Cause: domain.ErrInsufficientStock}, CodeInsufficientStock},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CodeOf(tc.err), "%v", tc.err)
	}
}

func TestFailureRebuildsDomainErrors(t *testing.T) {
	err := failure{code: CodeValidation, fieldErrors: map[string]string{"phone": "bad"}}.err()
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "bad", verr.Fields["phone"])

	err = failure{code: CodeInsufficientStock, message: "sold out", orderID: "o1", reconciled: true}.err()
	var pf *domain.PartialFailureError
	assert.True(t, errors.As(err, &pf))
	assert.True(t, pf.Reconciled)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	err = failure{code: CodeUnavailable, message: "redis down"}.err()
	assert.ErrorIs(t, err, domain.ErrBackingStoreUnavailable)

	err = failure{code: CodeInternal, message: "internal error"}.err()
	assert.EqualError(t, err, "order service: internal error")
}

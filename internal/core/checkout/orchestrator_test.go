package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

type fakeStock struct {
	calls  atomic.Int32
	result domain.ValidationResult
	err    error
	gate   chan struct{}
}

func (f *fakeStock) ValidateStock(ctx context.Context, items []domain.LineItem) (domain.ValidationResult, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return domain.ValidationResult{}, f.err
	}
	if f.result.Items == nil {
		checks := make([]domain.ItemCheck, len(items))
		for i, item := range items {
			checks[i] = domain.ItemCheck{Item: item, Requested: item.Quantity, Available: item.Quantity, OK: true}
		}
		return domain.ValidationResult{Items: checks, OK: true}, nil
	}
	return f.result, nil
}

type fakeOrders struct {
	mu         sync.Mutex
	requestIDs []string
	err        error
}

func (f *fakeOrders) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestIDs = append(f.requestIDs, req.RequestID)
	if f.err != nil {
		return nil, f.err
	}
	order := domain.NewOrder(fmt.Sprintf("order-%d", len(f.requestIDs)), req.Customer, req.Items, req.ShippingMethod, decimal.NewFromInt(400), req.Notes, time.Now())
	return &order, nil
}

func (f *fakeOrders) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requestIDs)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func validForm() Form {
	return Form{
		Customer: domain.Customer{
			Name:     "Sara Haddad",
			Phone:    "0661234567",
			Address:  "5 boulevard de la Soummam",
			City:     "Oran",
			WilayaID: 31,
		},
		ShippingMethod: domain.ShippingHome,
	}
}

func teeLine(qty int) domain.LineItem {
	return domain.LineItem{ProductID: "tee", Size: "M", Color: "Black", Quantity: qty, UnitPrice: decimal.NewFromInt(1500)}
}

func TestSubmit_Success(t *testing.T) {
	stock := &fakeStock{}
	orders := &fakeOrders{}
	cart := NewCart(teeLine(2))
	navigated := make(chan string, 1)
	o := NewOrchestrator(stock, orders, cart,
		WithLogger(quietLogger()),
		WithRedirect(10*time.Millisecond, func(id string) { navigated <- id }))

	order, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	snap := o.Snapshot()
	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, order.ID, snap.OrderID)
	assert.Zero(t, cart.Len())

	select {
	case id := <-navigated:
		assert.Equal(t, order.ID, id)
	case <-time.After(time.Second):
		t.Fatal("redirect never fired")
	}
}

func TestSubmit_BadPhoneMakesNoCalls(t *testing.T) {
	stock := &fakeStock{}
	orders := &fakeOrders{}
	o := NewOrchestrator(stock, orders, NewCart(teeLine(1)), WithLogger(quietLogger()))

	form := validForm()
	form.Customer.Phone = "123456789"
	_, err := o.Submit(context.Background(), form)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "phone")
	assert.EqualValues(t, 0, stock.calls.Load())
	assert.Equal(t, 0, orders.calls())

	snap := o.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "123456789", snap.Form.Customer.Phone)
	assert.Contains(t, snap.FieldErrors, "phone")
}

func TestSubmit_DeskPickupNeedsNoAddress(t *testing.T) {
	o := NewOrchestrator(&fakeStock{}, &fakeOrders{}, NewCart(teeLine(1)), WithLogger(quietLogger()))

	form := validForm()
	form.Customer.Address = ""
	form.ShippingMethod = domain.ShippingDesk
	_, err := o.Submit(context.Background(), form)
	require.NoError(t, err)
}

func TestSubmit_EmptyCart(t *testing.T) {
	stock := &fakeStock{}
	o := NewOrchestrator(stock, &fakeOrders{}, NewCart(), WithLogger(quietLogger()))

	_, err := o.Submit(context.Background(), validForm())
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "items")
	assert.EqualValues(t, 0, stock.calls.Load())
}

func TestSubmit_ShortfallKeepsFormAndCart(t *testing.T) {
	item := teeLine(3)
	stock := &fakeStock{result: domain.ValidationResult{
		Items: []domain.ItemCheck{{Item: item, Requested: 3, Available: 2}},
	}}
	orders := &fakeOrders{}
	cart := NewCart(item)
	o := NewOrchestrator(stock, orders, cart, WithLogger(quietLogger()))

	_, err := o.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 0, orders.calls())

	snap := o.Snapshot()
	assert.Equal(t, StateError, snap.State)
	require.Len(t, snap.Messages, 1)
	assert.Contains(t, snap.Messages[0], "only 2 available")
	assert.Equal(t, "Sara Haddad", snap.Form.Customer.Name)
	assert.Equal(t, 1, cart.Len())
}

func TestSubmit_UnreconciledFailureAsksForSupport(t *testing.T) {
	orders := &fakeOrders{err: &domain.PartialFailureError{OrderID: "ord-42", Cause: domain.ErrBackingStoreUnavailable}}
	cart := NewCart(teeLine(1))
	o := NewOrchestrator(&fakeStock{}, orders, cart, WithLogger(quietLogger()))

	_, err := o.Submit(context.Background(), validForm())
	require.Error(t, err)

	snap := o.Snapshot()
	assert.Equal(t, StateError, snap.State)
	require.Len(t, snap.Messages, 1)
	assert.Contains(t, snap.Messages[0], "contact support")
	assert.Contains(t, snap.Messages[0], "ord-42")
	assert.Equal(t, 1, cart.Len())
}

func TestSubmit_LostRaceShowsStockMessage(t *testing.T) {
	orders := &fakeOrders{err: &domain.PartialFailureError{OrderID: "ord-7", Cause: domain.ErrInsufficientStock, Reconciled: true}}
	o := NewOrchestrator(&fakeStock{}, orders, NewCart(teeLine(1)), WithLogger(quietLogger()))

	_, err := o.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	msgs := o.Snapshot().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "Some items just sold out. Please review your cart.", msgs[0])
	assert.Contains(t, msgs[1], "order id ord-7")
	assert.NotContains(t, msgs[1], "Please contact support")
}

func TestSubmit_RejectsWhileInFlight(t *testing.T) {
	stock := &fakeStock{gate: make(chan struct{})}
	orders := &fakeOrders{}
	o := NewOrchestrator(stock, orders, NewCart(teeLine(1)), WithLogger(quietLogger()))

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), validForm())
		done <- err
	}()

	require.Eventually(t, func() bool { return o.Snapshot().State == StateValidating }, time.Second, time.Millisecond)

	_, err := o.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(stock.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, orders.calls())
}

func TestSubmit_FreshRequestIDPerAttempt(t *testing.T) {
	orders := &fakeOrders{err: domain.ErrBackingStoreUnavailable}
	cart := NewCart(teeLine(1))
	var seq atomic.Int32
	o := NewOrchestrator(&fakeStock{}, orders, cart,
		WithLogger(quietLogger()),
		withRequestIDs(func() string { return fmt.Sprintf("req-%d", seq.Add(1)) }))

	_, err := o.Submit(context.Background(), validForm())
	require.Error(t, err)
	_, err = o.Submit(context.Background(), validForm())
	require.Error(t, err)

	assert.Equal(t, []string{"req-1", "req-2"}, orders.requestIDs)
}

func TestReset_StopsRedirect(t *testing.T) {
	var fired atomic.Bool
	o := NewOrchestrator(&fakeStock{}, &fakeOrders{}, NewCart(teeLine(1)),
		WithLogger(quietLogger()),
		WithRedirect(50*time.Millisecond, func(string) { fired.Store(true) }))

	_, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)
	o.Reset()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.Equal(t, StateIdle, o.Snapshot().State)
}

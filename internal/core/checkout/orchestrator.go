// Package checkout drives a single customer's checkout form through
// validation, stock pre-flight and order submission.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
)

// DefaultRedirectDelay is how long the success screen stays up before navigating away.
const DefaultRedirectDelay = 5 * time.Second

var ErrSubmissionInProgress = errors.New("checkout submission already in progress")

type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateError      State = "error"
)

type StockChecker interface {
	ValidateStock(ctx context.Context, items []domain.LineItem) (domain.ValidationResult, error)
}

type OrderPlacer interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error)
}

// Draft is the locally held cart that gets cleared after a successful order.
type Draft interface {
	Items() []domain.LineItem
	Clear()
}

// Form is what the customer typed; the items come from the draft.
type Form struct {
	Customer       domain.Customer
	ShippingMethod domain.ShippingMethod
	Notes          string
}

// Snapshot is a read-only view of the orchestrator for rendering.
type Snapshot struct {
	State       State
	Form        Form
	FieldErrors map[string]string
	Messages    []string
	OrderID     string
	Order       *domain.Order
}

type Option func(*Orchestrator)

// WithRedirect sets the countdown length and the callback fired when it ends.
func WithRedirect(delay time.Duration, navigate func(orderID string)) Option {
	return func(o *Orchestrator) {
		o.redirectDelay = delay
		o.navigate = navigate
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log.WithField("component", "checkout")
	}
}

func withRequestIDs(newID func() string) Option {
	return func(o *Orchestrator) {
		o.newRequestID = newID
	}
}

type Orchestrator struct {
	stock  StockChecker
	orders OrderPlacer
	draft  Draft

	redirectDelay time.Duration
	navigate      func(orderID string)
	newRequestID  func() string
	log           *logrus.Entry

	mu          sync.Mutex
	state       State
	form        Form
	fieldErrors map[string]string
	messages    []string
	order       *domain.Order
	timer       *time.Timer
}

func NewOrchestrator(stock StockChecker, orders OrderPlacer, draft Draft, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stock:         stock,
		orders:        orders,
		draft:         draft,
		redirectDelay: DefaultRedirectDelay,
		navigate:      func(string) {},
		newRequestID:  func() string { return uuid.New().String() },
		log:           logrus.NewEntry(logrus.StandardLogger()).WithField("component", "checkout"),
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit runs one checkout attempt. It returns ErrSubmissionInProgress
// without side effects while a previous attempt is still validating or
// submitting.
func (o *Orchestrator) Submit(ctx context.Context, form Form) (*domain.Order, error) {
	o.mu.Lock()
	if o.state == StateValidating || o.state == StateSubmitting {
		o.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	o.stopTimerLocked()
	o.form = form
	o.fieldErrors = nil
	o.messages = nil
	o.order = nil

	items := o.draft.Items()
	if err := validateForm(form, items); err != nil {
		o.failLocked(err)
		o.mu.Unlock()
		return nil, err
	}
	o.state = StateValidating
	o.mu.Unlock()

	result, err := o.stock.ValidateStock(ctx, items)
	if err != nil {
		return nil, o.fail(fmt.Errorf("stock validation: %w", err))
	}
	if !result.OK {
		return nil, o.fail(&domain.InsufficientStockError{Shortfalls: result.Shortfalls()})
	}

	o.setState(StateSubmitting)
	requestID := o.newRequestID()
	order, err := o.orders.CreateOrder(ctx, domain.CreateOrderRequest{
		RequestID:      requestID,
		Customer:       form.Customer,
		Items:          items,
		ShippingMethod: form.ShippingMethod,
		Notes:          form.Notes,
	})
	if err != nil {
		o.log.WithError(err).WithField("request_id", requestID).Warn("checkout submission failed")
		return nil, o.fail(err)
	}

	o.draft.Clear()

	o.mu.Lock()
	o.state = StateSuccess
	o.order = order
	o.form = Form{}
	orderID := order.ID
	o.timer = time.AfterFunc(o.redirectDelay, func() { o.navigate(orderID) })
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{"order_id": order.ID, "request_id": requestID}).Info("checkout completed")
	return order, nil
}

// Reset returns to idle and cancels a pending redirect. The form is kept.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopTimerLocked()
	o.state = StateIdle
	o.fieldErrors = nil
	o.messages = nil
	o.order = nil
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		State:    o.state,
		Form:     o.form,
		Messages: append([]string(nil), o.messages...),
		Order:    o.order,
	}
	if o.order != nil {
		snap.OrderID = o.order.ID
	}
	if o.fieldErrors != nil {
		snap.FieldErrors = make(map[string]string, len(o.fieldErrors))
		for k, v := range o.fieldErrors {
			snap.FieldErrors[k] = v
		}
	}
	return snap
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) fail(err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failLocked(err)
	return err
}

func (o *Orchestrator) failLocked(err error) {
	o.state = StateError
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		o.fieldErrors = verr.Fields
	}
	o.messages = Messages(err)
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func validateForm(form Form, items []domain.LineItem) error {
	verr := domain.ValidateCustomer(form.Customer, form.ShippingMethod)
	if len(items) == 0 {
		verr.Add("items", "your cart is empty")
	} else {
		for field, msg := range domain.ValidateItems(items).Fields {
			verr.Add(field, msg)
		}
	}
	return verr.OrNil()
}

// Messages turns a checkout error into the lines shown to the customer.
func Messages(err error) []string {
	var (
		verr *domain.ValidationError
		ise  *domain.InsufficientStockError
		pf   *domain.PartialFailureError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pf) && !pf.Reconciled:
		return []string{fmt.Sprintf("We could not confirm your order. Please contact support with order id %s.", pf.OrderID)}
	case errors.As(err, &pf):
		return append(Messages(pf.Cause),
			fmt.Sprintf("Your order was cancelled and nothing was reserved. Quote order id %s if you contact support.", pf.OrderID))
	case errors.As(err, &ise):
		msgs := make([]string, 0, len(ise.Shortfalls))
		for _, s := range ise.Shortfalls {
			msgs = append(msgs, s.Message())
		}
		return msgs
	case errors.Is(err, domain.ErrInsufficientStock):
		return []string{"Some items just sold out. Please review your cart."}
	case errors.As(err, &verr):
		return []string{"Please correct the highlighted fields."}
	case errors.Is(err, domain.ErrNotFound):
		return []string{"A product in your cart is no longer available. Remove it and try again."}
	case errors.Is(err, domain.ErrDuplicateRequest):
		return []string{"This order was already submitted."}
	default:
		return []string{"Something went wrong. Please try again."}
	}
}

// Summary joins Messages for single-line output.
func Summary(err error) string {
	return strings.Join(Messages(err), " ")
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/cache"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	DefaultPageSize     = 20
	MaxPageSize         = 100
	compensationTimeout = 10 * time.Second
)

type listKey struct {
	limit, offset int
}

type OrderServiceConfig struct {
	Validator *StockValidator
	Ledger    port.StockLedger
	Orders    port.OrderRepository
	Shipping  port.ShippingTable

	// Optional collaborators.
	Catalog     port.ProductCatalog
	Idempotency port.IdempotencyStore
	Products    *ProductService

	ListTTL time.Duration
	Logger  *logrus.Logger
}

// OrderService is the order placement pipeline: validate, persist the
// order, then deduct stock synchronously.
type OrderService struct {
	validator   *StockValidator
	ledger      port.StockLedger
	orders      port.OrderRepository
	shipping    port.ShippingTable
	catalog     port.ProductCatalog
	idempotency port.IdempotencyStore
	products    *ProductService
	listCache   *cache.Cache[listKey, []domain.Order]
	log         *logrus.Entry

	now   func() time.Time
	newID func() string
}

func NewOrderService(cfg OrderServiceConfig) *OrderService {
	log := cfg.Logger.WithField("component", "order_service")
	return &OrderService{
		validator:   cfg.Validator,
		ledger:      cfg.Ledger,
		orders:      cfg.Orders,
		shipping:    cfg.Shipping,
		catalog:     cfg.Catalog,
		idempotency: cfg.Idempotency,
		products:    cfg.Products,
		listCache:   cache.New[listKey, []domain.Order](cfg.ListTTL, cache.WithLogger(log)),
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
}

// ValidateStock exposes the pre-flight check used by the checkout form.
func (s *OrderService) ValidateStock(ctx context.Context, items []domain.LineItem) (domain.ValidationResult, error) {
	if err := domain.ValidateItems(items).OrNil(); err != nil {
		return domain.ValidationResult{}, err
	}
	return s.validator.Validate(ctx, items)
}

func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result, err := s.validator.Validate(ctx, req.Items)
	if err != nil {
		return nil, fmt.Errorf("stock validation failed: %w", err)
	}
	if !result.OK {
		return nil, &domain.InsufficientStockError{Shortfalls: result.Shortfalls()}
	}

	items, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	shippingCost, err := s.shipping.ShippingCost(ctx, req.Customer.WilayaID, req.ShippingMethod)
	if errors.Is(err, domain.ErrNotFound) {
		verr := domain.NewValidationError()
		verr.Add("wilaya", "no shipping rate for this wilaya")
		return nil, verr
	}
	if err != nil {
		return nil, fmt.Errorf("shipping cost lookup failed: %w", err)
	}
	customer := req.Customer
	if name, ok := s.shipping.Wilaya(customer.WilayaID); ok {
		customer.WilayaName = name
	}

	claimed := req.RequestID != "" && s.idempotency != nil
	if claimed {
		ok, err := s.idempotency.SetIdempotency(ctx, idempotencyKey(req.RequestID))
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	order := domain.NewOrder(s.newID(), customer, items, req.ShippingMethod, shippingCost, req.Notes, s.now())
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if claimed {
			s.releaseRequest(ctx, req.RequestID)
		}
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := s.deductStock(ctx, order); err != nil {
		return nil, err
	}
	if err := s.orders.MarkStockCommitted(ctx, order.ID, s.now()); err != nil {
		s.log.WithError(err).WithField("order_id", order.ID).Error("could not mark stock committed, rolling back order")
		return nil, s.compensate(ctx, order, order.Items, err)
	}
	order.StockCommitted = true

	s.invalidateStock(order.Items)
	s.listCache.InvalidateAll()

	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"items":    len(order.Items),
		"total":    order.Total.String(),
	}).Info("order created")
	return &order, nil
}

func idempotencyKey(requestID string) string {
	return "order:" + requestID
}

// releaseRequest frees a claimed request id when no order was written, so the
// client can retry with the same id.
func (s *OrderService) releaseRequest(ctx context.Context, requestID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.idempotency.ReleaseIdempotency(ctx, idempotencyKey(requestID)); err != nil {
		s.log.WithError(err).WithField("request_id", requestID).Warn("could not release idempotency key")
	}
}

// priceItems replaces client-sent unit prices with catalog prices when a
// catalog is configured.
func (s *OrderService) priceItems(ctx context.Context, items []domain.LineItem) ([]domain.LineItem, error) {
	priced := append([]domain.LineItem(nil), items...)
	if s.catalog == nil {
		return priced, nil
	}

	products := make(map[string]*domain.Product)
	for i, item := range priced {
		p, ok := products[item.ProductID]
		if !ok {
			var err error
			p, err = s.catalog.GetProduct(ctx, item.ProductID)
			if err != nil {
				return nil, fmt.Errorf("price lookup for %s: %w", item.ProductID, err)
			}
			products[item.ProductID] = p
		}
		priced[i].UnitPrice = p.Price
	}
	return priced, nil
}

// deductStock decrements every line directly on the ledger. On the first
// failure already-decremented lines are restored and the order is cancelled.
func (s *OrderService) deductStock(ctx context.Context, order domain.Order) error {
	decremented := make([]domain.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		if _, err := s.ledger.DecrementStock(ctx, item.ProductID, item.Size, item.Color, item.Quantity); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"order_id":   order.ID,
				"product_id": item.ProductID,
				"size":       item.Size,
				"color":      item.Color,
				"quantity":   item.Quantity,
			}).Warn("stock deduction failed")
			return s.compensate(ctx, order, decremented, err)
		}
		decremented = append(decremented, item)
	}
	return nil
}

// compensate restores the decremented lines and cancels the order. Admin
// transitions are refused until stock is committed, so the pending ->
// cancelled compare-and-set here cannot lose to an admin cancel.
func (s *OrderService) compensate(ctx context.Context, order domain.Order, decremented []domain.LineItem, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	log := s.log.WithField("order_id", order.ID)

	reconciled := true
	for _, item := range decremented {
		if _, err := s.ledger.IncrementStock(ctx, item.ProductID, item.Size, item.Color, item.Quantity); err != nil {
			reconciled = false
			log.WithError(err).WithFields(logrus.Fields{
				"product_id": item.ProductID,
				"size":       item.Size,
				"color":      item.Color,
				"quantity":   item.Quantity,
			}).Error("CRITICAL: compensating restock failed, manual reconciliation required")
		}
	}

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled, s.now()); err != nil {
		reconciled = false
		log.WithError(err).Error("CRITICAL: could not cancel order after failed stock deduction")
	}

	s.invalidateStock(order.Items)
	s.listCache.InvalidateAll()

	log.WithError(cause).WithField("reconciled", reconciled).Error("stock deduction failed after order was persisted")
	return &domain.PartialFailureError{OrderID: order.ID, Cause: cause, Reconciled: reconciled}
}

func (s *OrderService) invalidateStock(items []domain.LineItem) {
	if s.products == nil {
		return
	}
	for _, item := range items {
		s.products.Invalidate(item.ProductID)
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

// UpdateOrderStatus persists synchronously; it never goes through the
// optimistic-write path. Cancelling returns the order's units to stock.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	if !status.Valid() {
		verr := domain.NewValidationError()
		verr.Add("status", fmt.Sprintf("unknown status %q", status))
		return verr
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !order.StockCommitted {
		return fmt.Errorf("order %s is still being placed: %w", id, domain.ErrInvalidTransition)
	}
	if order.Status.Terminal() {
		return fmt.Errorf("order %s is already %s: %w", id, order.Status, domain.ErrInvalidTransition)
	}
	if !order.Status.CanTransitionTo(status) {
		return fmt.Errorf("order %s %s -> %s: %w", id, order.Status, status, domain.ErrInvalidTransition)
	}

	if err := s.orders.UpdateOrderStatus(ctx, id, order.Status, status, s.now()); err != nil {
		return err
	}
	s.listCache.InvalidateAll()

	s.log.WithFields(logrus.Fields{"order_id": id, "from": order.Status, "to": status}).Info("order status updated")

	if status == domain.OrderStatusCancelled {
		return s.restoreStock(ctx, *order)
	}
	return nil
}

func (s *OrderService) restoreStock(ctx context.Context, order domain.Order) error {
	var failed error
	for _, item := range order.Items {
		if _, err := s.ledger.IncrementStock(ctx, item.ProductID, item.Size, item.Color, item.Quantity); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"order_id":   order.ID,
				"product_id": item.ProductID,
				"size":       item.Size,
				"color":      item.Color,
				"quantity":   item.Quantity,
			}).Error("CRITICAL: restock of cancelled order failed, manual reconciliation required")
			failed = errors.Join(failed, err)
		}
	}
	s.invalidateStock(order.Items)
	if failed != nil {
		return &domain.PartialFailureError{OrderID: order.ID, Cause: failed}
	}
	return nil
}

// BulkUpdateOrderStatus skips ids that are unknown or cannot make the
// transition, and stops at the first backing-store error.
func (s *OrderService) BulkUpdateOrderStatus(ctx context.Context, ids []string, status domain.OrderStatus) (int, error) {
	if !status.Valid() {
		verr := domain.NewValidationError()
		verr.Add("status", fmt.Sprintf("unknown status %q", status))
		return 0, verr
	}

	seen := make(map[string]bool, len(ids))
	updated := 0
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		err := s.UpdateOrderStatus(ctx, id, status)
		var pf *domain.PartialFailureError
		switch {
		case err == nil:
			updated++
		case errors.As(err, &pf):
			updated++
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
			s.log.WithError(err).WithField("order_id", id).Info("bulk update skipped order")
		default:
			return updated, fmt.Errorf("bulk update stopped at order %s: %w", id, err)
		}
	}
	return updated, nil
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	if !status.Valid() {
		verr := domain.NewValidationError()
		verr.Add("paymentStatus", fmt.Sprintf("unknown payment status %q", status))
		return verr
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !order.PaymentStatus.CanTransitionTo(status) {
		return fmt.Errorf("order %s payment %s -> %s: %w", id, order.PaymentStatus, status, domain.ErrInvalidTransition)
	}
	if err := s.orders.UpdatePaymentStatus(ctx, id, order.PaymentStatus, status, s.now()); err != nil {
		return err
	}
	s.listCache.InvalidateAll()
	return nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.listCache.InvalidateAll()
	s.log.WithField("order_id", id).Warn("order deleted")
	return nil
}

// SearchOrders always reads the store.
func (s *OrderService) SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		verr := domain.NewValidationError()
		verr.Add("status", fmt.Sprintf("unknown status %q", filter.Status))
		return nil, verr
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	return s.orders.ListOrders(ctx, filter)
}

// GetOrders is the unfiltered listing served from the short-lived cache.
func (s *OrderService) GetOrders(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	limit, offset = normalizePage(limit, offset)
	return s.listCache.Read(ctx, listKey{limit, offset}, func(ctx context.Context) ([]domain.Order, error) {
		return s.orders.ListOrders(ctx, domain.OrderFilter{Limit: limit, Offset: offset})
	})
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

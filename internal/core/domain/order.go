package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Fulfillment moves forward only; an order may skip ahead (a pending order
// handed straight to the courier is shipped) but never back.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further fulfillment transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid || s == PaymentStatusFailed
}

// CanTransitionTo allows pending -> paid|failed and a retried failed -> paid.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusPaid || next == PaymentStatusFailed
	case PaymentStatusFailed:
		return next == PaymentStatusPaid
	}
	return false
}

type ShippingMethod string

const (
	ShippingHome ShippingMethod = "home"
	ShippingDesk ShippingMethod = "desk"
)

func (m ShippingMethod) Valid() bool {
	return m == ShippingHome || m == ShippingDesk
}

// RequiresAddress is true for home delivery only.
func (m ShippingMethod) RequiresAddress() bool {
	return m == ShippingHome
}

type Customer struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	WilayaID   int    `json:"wilayaId"`
	WilayaName string `json:"wilayaName,omitempty"`
}

type LineItem struct {
	ProductID string          `json:"productId"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// LineTotal is UnitPrice x Quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID             string          `json:"id"`
	Customer       Customer        `json:"customer"`
	Items          []LineItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingMethod ShippingMethod  `json:"shippingMethod"`
	ShippingCost   decimal.Decimal `json:"shippingCost"`
	Total          decimal.Decimal `json:"total"`
	Status         OrderStatus     `json:"status"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	Notes          string          `json:"notes,omitempty"`

	// StockCommitted is set once every line has been deducted from the ledger.
	StockCommitted bool      `json:"stockCommitted"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewOrder builds a pending order and fixes its totals. Total is never
// recomputed afterwards.
func NewOrder(id string, customer Customer, items []LineItem, method ShippingMethod, shippingCost decimal.Decimal, notes string, now time.Time) Order {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return Order{
		ID:             id,
		Customer:       customer,
		Items:          items,
		Subtotal:       subtotal,
		ShippingMethod: method,
		ShippingCost:   shippingCost,
		Total:          subtotal.Add(shippingCost),
		Status:         OrderStatusPending,
		PaymentStatus:  PaymentStatusPending,
		Notes:          notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CreateOrderRequest is the checkout payload handed to the pipeline.
type CreateOrderRequest struct {
	RequestID      string         `json:"requestId,omitempty"`
	Customer       Customer       `json:"customer"`
	Items          []LineItem     `json:"items"`
	ShippingMethod ShippingMethod `json:"shippingMethod"`
	Notes          string         `json:"notes,omitempty"`
}

type OrderFilter struct {
	Search string
	Status OrderStatus
	Limit  int
	Offset int
}

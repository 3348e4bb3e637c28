package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Dial opens a plaintext connection that speaks the JSON codec.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	return grpc.NewClient(target, opts...)
}

// Client calls the order service and turns failure responses back into
// domain errors.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) ValidateStock(ctx context.Context, items []domain.LineItem) (domain.ValidationResult, error) {
	out := new(ValidateStockResponse)
	if err := c.invoke(ctx, validateStockMethod, &ValidateStockRequest{Items: items}, out); err != nil {
		return domain.ValidationResult{}, err
	}
	if !out.Success {
		return domain.ValidationResult{}, failure{code: out.Code, message: out.Message}.err()
	}
	return out.Result, nil
}

func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	out := new(CreateOrderResponse)
	if err := c.invoke(ctx, createOrderMethod, &CreateOrderRequest{Order: req}, out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, failure{
			code:        out.Code,
			message:     out.Message,
			fieldErrors: out.FieldErrors,
			shortfalls:  out.Shortfalls,
			orderID:     out.OrderID,
			reconciled:  out.Reconciled,
		}.err()
	}
	return out.Order, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	out := new(UpdateOrderStatusResponse)
	if err := c.invoke(ctx, updateOrderStatusMethod, &UpdateOrderStatusRequest{OrderID: orderID, Status: status}, out); err != nil {
		return err
	}
	if !out.Success {
		return failure{code: out.Code, message: out.Message}.err()
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if err := c.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return fmt.Errorf("%s: %w: %w", method, domain.ErrBackingStoreUnavailable, err)
	}
	return nil
}

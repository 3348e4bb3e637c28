package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	serviceName = "storefront.OrderService"

	validateStockMethod     = "/" + serviceName + "/ValidateStock"
	createOrderMethod       = "/" + serviceName + "/CreateOrder"
	updateOrderStatusMethod = "/" + serviceName + "/UpdateOrderStatus"
)

type ValidateStockRequest struct {
	Items []domain.LineItem `json:"items"`
}

type ValidateStockResponse struct {
	Success bool                    `json:"success"`
	Code    Code                    `json:"code,omitempty"`
	Message string                  `json:"message,omitempty"`
	Result  domain.ValidationResult `json:"result"`
}

type CreateOrderRequest struct {
	Order domain.CreateOrderRequest `json:"order"`
}

type CreateOrderResponse struct {
	Success     bool               `json:"success"`
	Code        Code               `json:"code,omitempty"`
	Message     string             `json:"message,omitempty"`
	Order       *domain.Order      `json:"order,omitempty"`
	OrderID     string             `json:"orderId,omitempty"`
	Reconciled  bool               `json:"reconciled,omitempty"`
	Shortfalls  []domain.ItemCheck `json:"shortfalls,omitempty"`
	FieldErrors map[string]string  `json:"fieldErrors,omitempty"`
}

type UpdateOrderStatusRequest struct {
	OrderID string             `json:"orderId"`
	Status  domain.OrderStatus `json:"status"`
}

type UpdateOrderStatusResponse struct {
	Success bool   `json:"success"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// OrderServiceServer is implemented by the transport handler. Business
// failures travel in the response body; a returned error means the call
// itself failed.
type OrderServiceServer interface {
	ValidateStock(context.Context, *ValidateStockRequest) (*ValidateStockResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error)
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ValidateStock", Handler: validateStockHandler},
		{MethodName: "CreateOrder", Handler: createOrderHandler},
		{MethodName: "UpdateOrderStatus", Handler: updateOrderStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/order_service",
}

func validateStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ValidateStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).ValidateStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: validateStockMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).ValidateStock(ctx, req.(*ValidateStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func createOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).CreateOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: createOrderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).CreateOrder(ctx, req.(*CreateOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func updateOrderStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateOrderStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).UpdateOrderStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: updateOrderStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).UpdateOrderStatus(ctx, req.(*UpdateOrderStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

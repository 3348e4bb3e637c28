package handler

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/rpc"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type GRPCHandler struct {
	orderService *service.OrderService
	log          *logrus.Entry
}

var _ rpc.OrderServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(orderService *service.OrderService, log *logrus.Logger) *GRPCHandler {
	return &GRPCHandler{orderService: orderService, log: log.WithField("component", "grpc")}
}

func (h *GRPCHandler) ValidateStock(ctx context.Context, req *rpc.ValidateStockRequest) (*rpc.ValidateStockResponse, error) {
	result, err := h.orderService.ValidateStock(ctx, req.Items)
	if err != nil {
		return &rpc.ValidateStockResponse{
			Success: false,
			Code:    rpc.CodeOf(err),
			Message: publicMessage(err),
		}, nil
	}
	return &rpc.ValidateStockResponse{Success: true, Result: result}, nil
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *rpc.CreateOrderRequest) (*rpc.CreateOrderResponse, error) {
	order, err := h.orderService.CreateOrder(ctx, req.Order)
	if err != nil {
		resp := &rpc.CreateOrderResponse{
			Success: false,
			Code:    rpc.CodeOf(err),
			Message: publicMessage(err),
		}
		var (
			verr *domain.ValidationError
			ise  *domain.InsufficientStockError
			pf   *domain.PartialFailureError
		)
		if errors.As(err, &verr) {
			resp.FieldErrors = verr.Fields
		}
		if errors.As(err, &ise) {
			resp.Shortfalls = ise.Shortfalls
		}
		if errors.As(err, &pf) {
			resp.OrderID = pf.OrderID
			resp.Reconciled = pf.Reconciled
		}
		return resp, nil
	}

	return &rpc.CreateOrderResponse{
		Success: true,
		Order:   order,
		Message: "order placed successfully",
	}, nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *rpc.UpdateOrderStatusRequest) (*rpc.UpdateOrderStatusResponse, error) {
	if err := h.orderService.UpdateOrderStatus(ctx, req.OrderID, req.Status); err != nil {
		return &rpc.UpdateOrderStatusResponse{
			Success: false,
			Code:    rpc.CodeOf(err),
			Message: publicMessage(err),
		}, nil
	}
	return &rpc.UpdateOrderStatusResponse{Success: true}, nil
}

// UnaryLogger logs every call with its method and latency.
func (h *GRPCHandler) UnaryLogger() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		entry := h.log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"duration": time.Now().Sub(start).String(),
		})
		if err != nil {
			entry.WithError(err).Warn("rpc failed")
		} else {
			entry.Debug("rpc served")
		}
		return resp, err
	}
}

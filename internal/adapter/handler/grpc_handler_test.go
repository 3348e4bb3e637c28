package handler

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/storefront/internal/adapter/rpc"
	"github.com/rl1809/storefront/internal/core/domain"
)

func newBufconnClient(t *testing.T, f *fixture) *rpc.Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	h := NewGRPCHandler(f.orders, f.log)
	srv := grpc.NewServer(grpc.UnaryInterceptor(h.UnaryLogger()))
	rpc.RegisterOrderServiceServer(srv, h)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := rpc.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return rpc.NewClient(conn)
}

func TestGRPC_CreateOrder(t *testing.T) {
	f := newFixture(t)
	client := newBufconnClient(t, f)
	ctx := context.Background()

	result, err := client.ValidateStock(ctx, checkout(2).Items)
	require.NoError(t, err)
	assert.True(t, result.OK)

	order, err := client.CreateOrder(ctx, checkout(2))
	require.NoError(t, err)
	assert.Equal(t, "3400", order.Total.String())

	_, err = client.CreateOrder(ctx, checkout(1))
	var ise *domain.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 0, ise.Shortfalls[0].Available)
}

func TestGRPC_ValidationErrorsRoundTrip(t *testing.T) {
	f := newFixture(t)
	client := newBufconnClient(t, f)

	req := checkout(1)
	req.Customer.Address = ""
	_, err := client.CreateOrder(context.Background(), req)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "address")
}

func TestGRPC_UpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	client := newBufconnClient(t, f)
	ctx := context.Background()

	order, err := client.CreateOrder(ctx, checkout(1))
	require.NoError(t, err)

	require.NoError(t, client.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled))
	err = client.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = client.UpdateOrderStatus(ctx, "missing", domain.OrderStatusProcessing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

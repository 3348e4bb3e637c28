package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/storefront/internal/adapter/rpc"
	"github.com/rl1809/storefront/internal/core/checkout"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
)

// itemFlags collects repeated -item product:size:color:qty values.
type itemFlags []domain.LineItem

func (f *itemFlags) String() string {
	parts := make([]string, 0, len(*f))
	for _, item := range *f {
		parts = append(parts, fmt.Sprintf("%s:%s:%s:%d", item.ProductID, item.Size, item.Color, item.Quantity))
	}
	return strings.Join(parts, ",")
}

func (f *itemFlags) Set(value string) error {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return fmt.Errorf("item %q: want product:size:color:qty", value)
	}
	qty, err := strconv.Atoi(parts[3])
	if err != nil {
		return fmt.Errorf("item %q: bad quantity: %w", value, err)
	}
	*f = append(*f, domain.LineItem{ProductID: parts[0], Size: parts[1], Color: parts[2], Quantity: qty})
	return nil
}

// errCheckoutFailed means the orchestrator already reported the failure.
var errCheckoutFailed = errors.New("checkout failed")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errCheckoutFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		items   itemFlags
		addr    = fs.String("addr", "localhost:50051", "order service gRPC address")
		name    = fs.String("name", "", "customer name")
		phone   = fs.String("phone", "", "customer phone, 0 followed by 9 digits")
		email   = fs.String("email", "", "customer email (optional)")
		address = fs.String("address", "", "street address, required for home delivery")
		city    = fs.String("city", "", "city")
		wilaya  = fs.Int("wilaya", 0, "wilaya id")
		method  = fs.String("method", string(domain.ShippingHome), "shipping method: home or desk")
		notes   = fs.String("notes", "", "order notes")
		timeout = fs.Duration("timeout", 10*time.Second, "request timeout")
		level   = fs.String("log-level", "warn", "log level")
	)
	fs.Var(&items, "item", "line item product:size:color:qty (repeatable)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	log := logging.New(*level)

	conn, err := rpc.Dial(*addr)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer conn.Close()
	client := rpc.NewClient(conn)

	cart := checkout.NewCart(items...)
	redirected := make(chan string, 1)
	orchestrator := checkout.NewOrchestrator(client, client, cart,
		checkout.WithLogger(log),
		checkout.WithRedirect(3*time.Second, func(orderID string) { redirected <- orderID }))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	order, err := orchestrator.Submit(ctx, checkout.Form{
		Customer: domain.Customer{
			Name:     *name,
			Phone:    *phone,
			Email:    *email,
			Address:  *address,
			City:     *city,
			WilayaID: *wilaya,
		},
		ShippingMethod: domain.ShippingMethod(*method),
		Notes:          *notes,
	})
	if err != nil {
		snap := orchestrator.Snapshot()
		for field, msg := range snap.FieldErrors {
			fmt.Fprintf(stderr, "  %s: %s\n", field, msg)
		}
		for _, msg := range snap.Messages {
			fmt.Fprintln(stderr, msg)
		}
		return errCheckoutFailed
	}

	fmt.Fprintf(stdout, "Order %s placed. Total %s (shipping %s).\n", order.ID, order.Total.StringFixed(2), order.ShippingCost.StringFixed(2))
	fmt.Fprintln(stdout, "Returning to the shop in 3 seconds...")
	fmt.Fprintf(stdout, "Order status page: /orders/%s\n", <-redirected)
	return nil
}

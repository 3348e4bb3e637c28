package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MySQLAdapter stores products, stock and orders. It implements
// port.StockLedger, port.ProductCatalog and port.OrderRepository.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("query product", err)
	}

	stock, err := m.loadStock(ctx, m.db, id)
	if err != nil {
		return nil, err
	}
	p.Stock = stock
	return &p, nil
}

// UpsertProduct creates or renames a product. Stock is managed separately.
func (m *MySQLAdapter) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, created_at, updated_at)
		VALUES (?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE name = VALUES(name), price = VALUES(price), updated_at = NOW()`,
		p.ID, p.Name, p.Price,
	)
	if err != nil {
		return storeErr("upsert product", err)
	}
	return nil
}

// ProductIDs lists every product; used to mirror stock into Redis at startup.
func (m *MySQLAdapter) ProductIDs(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, storeErr("list products", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan product id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list products", err)
	}
	return ids, nil
}

func (m *MySQLAdapter) GetStock(ctx context.Context, productID string) (domain.StockMap, error) {
	if err := m.productExists(ctx, m.db, productID); err != nil {
		return nil, err
	}
	return m.loadStock(ctx, m.db, productID)
}

// DecrementStock is a single conditional UPDATE, so two concurrent checkouts
// can never drive a quantity below zero.
func (m *MySQLAdapter) DecrementStock(ctx context.Context, productID, size, color string, amount int) (domain.StockMap, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("decrement amount must be positive, got %d", amount)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE product_stock
		SET quantity = quantity - ?, updated_at = NOW()
		WHERE product_id = ? AND size = ? AND color = ? AND quantity >= ?`,
		amount, productID, size, color, amount,
	)
	if err != nil {
		return nil, storeErr("decrement stock", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if err := m.productExists(ctx, m.db, productID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("product %s %s/%s: %w", productID, size, color, domain.ErrInsufficientStock)
	}

	return m.loadStock(ctx, m.db, productID)
}

func (m *MySQLAdapter) IncrementStock(ctx context.Context, productID, size, color string, amount int) (domain.StockMap, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("increment amount must be positive, got %d", amount)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback()

	if err := m.productExists(ctx, tx, productID); err != nil {
		return nil, err
	}

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM product_stock
		WHERE product_id = ? AND size = ? AND color = ? FOR UPDATE`,
		productID, size, color,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("lock stock row", err)
	}
	if current+amount > domain.MaxStockQuantity {
		return nil, domain.StockLimitError(productID, size, color)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_stock (product_id, size, color, quantity, updated_at)
		VALUES (?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity), updated_at = NOW()`,
		productID, size, color, amount,
	)
	if err != nil {
		return nil, storeErr("increment stock", err)
	}

	stock, err := m.loadStock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit", err)
	}
	return stock, nil
}

// SetStock overwrites one quantity; used for seeding only.
func (m *MySQLAdapter) SetStock(ctx context.Context, productID, size, color string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("stock quantity cannot be negative, got %d", quantity)
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO product_stock (product_id, size, color, quantity, updated_at)
		VALUES (?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), updated_at = NOW()`,
		productID, size, color, quantity,
	)
	if err != nil {
		return storeErr("set stock", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	c := order.Customer
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, phone, email, address, city, wilaya_id, wilaya_name,
			subtotal, shipping_method, shipping_cost, total, status, payment_status, notes,
			stock_committed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, c.Name, c.Phone, c.Email, c.Address, c.City, c.WilayaID, c.WilayaName,
		order.Subtotal, order.ShippingMethod, order.ShippingCost, order.Total,
		order.Status, order.PaymentStatus, order.Notes, order.StockCommitted, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return storeErr("insert order", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, line_no, product_id, size, color, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storeErr("prepare order item", err)
	}
	defer stmt.Close()

	for i, item := range order.Items {
		_, err = stmt.ExecContext(ctx, order.ID, i, item.ProductID, item.Size, item.Color, item.Quantity, item.UnitPrice)
		if err != nil {
			return storeErr("insert order item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

const orderColumns = `id, customer_name, phone, email, address, city, wilaya_id, wilaya_name,
	subtotal, shipping_method, shipping_cost, total, status, payment_status, notes,
	stock_committed, created_at, updated_at`

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("query order", err)
	}

	orders := []domain.Order{o}
	if err := m.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, at, id, from,
	)
	if err != nil {
		return storeErr("update order status", err)
	}
	return m.checkConditionalUpdate(ctx, result, id)
}

func (m *MySQLAdapter) MarkStockCommitted(ctx context.Context, id string, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET stock_committed = TRUE, updated_at = ?
		WHERE id = ?`,
		at, id,
	)
	if err != nil {
		return storeErr("mark stock committed", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	var exists int
	err = m.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("query order", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdatePaymentStatus(ctx context.Context, id string, from, to domain.PaymentStatus, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = ?, updated_at = ?
		WHERE id = ? AND payment_status = ?`,
		to, at, id, from,
	)
	if err != nil {
		return storeErr("update payment status", err)
	}
	return m.checkConditionalUpdate(ctx, result, id)
}

func (m *MySQLAdapter) DeleteOrder(ctx context.Context, id string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, id); err != nil {
		return storeErr("delete order items", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete order", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		where = append(where, `(LOWER(customer_name) LIKE ? OR LOWER(phone) LIKE ? OR LOWER(id) LIKE ?)`)
		args = append(args, pattern, pattern, pattern)
	}
	if filter.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, filter.Status)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, filter.Limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storeErr("scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate orders", err)
	}

	if err := m.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o     domain.Order
		email sql.NullString
		addr  sql.NullString
		city  sql.NullString
		wname sql.NullString
		notes sql.NullString
	)
	err := row.Scan(&o.ID, &o.Customer.Name, &o.Customer.Phone, &email, &addr, &city,
		&o.Customer.WilayaID, &wname, &o.Subtotal, &o.ShippingMethod, &o.ShippingCost, &o.Total,
		&o.Status, &o.PaymentStatus, &notes, &o.StockCommitted, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.Customer.Email = email.String
	o.Customer.Address = addr.String
	o.Customer.City = city.String
	o.Customer.WilayaName = wname.String
	o.Notes = notes.String
	return o, nil
}

func (m *MySQLAdapter) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	placeholders := make([]string, 0, len(orders))
	args := make([]any, 0, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		placeholders = append(placeholders, "?")
		args = append(args, o.ID)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id, product_id, size, color, quantity, unit_price
		FROM order_items
		WHERE order_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY order_id, line_no`, args...)
	if err != nil {
		return storeErr("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    domain.LineItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Size, &item.Color, &item.Quantity, &item.UnitPrice); err != nil {
			return storeErr("scan order item", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return storeErr("iterate order items", err)
	}
	return nil
}

func (m *MySQLAdapter) checkConditionalUpdate(ctx context.Context, result sql.Result, id string) error {
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	var exists int
	err := m.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("query order", err)
	}
	return fmt.Errorf("order %s changed concurrently: %w", id, domain.ErrInvalidTransition)
}

func (m *MySQLAdapter) productExists(ctx context.Context, q queryer, productID string) error {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, productID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("query product", err)
	}
	return nil
}

func (m *MySQLAdapter) loadStock(ctx context.Context, q queryer, productID string) (domain.StockMap, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT size, color, quantity FROM product_stock WHERE product_id = ?`, productID)
	if err != nil {
		return nil, storeErr("query stock", err)
	}
	defer rows.Close()

	stock := make(domain.StockMap)
	for rows.Next() {
		var (
			size, color string
			qty         int
		)
		if err := rows.Scan(&size, &color, &qty); err != nil {
			return nil, storeErr("scan stock", err)
		}
		stock.Set(size, color, qty)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate stock", err)
	}
	return stock, nil
}

// storeErr tags driver and connection failures as ErrBackingStoreUnavailable.
// MySQL server errors (constraint violations and the like) are passed through.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrBackingStoreUnavailable, err)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id         VARCHAR(64)    NOT NULL PRIMARY KEY,
		name       VARCHAR(255)   NOT NULL,
		price      DECIMAL(12, 2) NOT NULL DEFAULT 0,
		created_at DATETIME(6)    NOT NULL,
		updated_at DATETIME(6)    NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product_stock (
		product_id VARCHAR(64) NOT NULL,
		size       VARCHAR(32) NOT NULL,
		color      VARCHAR(64) NOT NULL,
		quantity   INT UNSIGNED NOT NULL DEFAULT 0,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (product_id, size, color),
		CONSTRAINT fk_stock_product FOREIGN KEY (product_id) REFERENCES products (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              CHAR(36)       NOT NULL PRIMARY KEY,
		customer_name   VARCHAR(255)   NOT NULL,
		phone           VARCHAR(16)    NOT NULL,
		email           VARCHAR(255)   NULL,
		address         VARCHAR(512)   NULL,
		city            VARCHAR(128)   NULL,
		wilaya_id       INT            NOT NULL,
		wilaya_name     VARCHAR(128)   NULL,
		subtotal        DECIMAL(12, 2) NOT NULL,
		shipping_method VARCHAR(16)    NOT NULL,
		shipping_cost   DECIMAL(12, 2) NOT NULL,
		total           DECIMAL(12, 2) NOT NULL,
		status          VARCHAR(16)    NOT NULL,
		payment_status  VARCHAR(16)    NOT NULL,
		notes           TEXT           NULL,
		stock_committed BOOLEAN        NOT NULL DEFAULT FALSE,
		created_at      DATETIME(6)    NOT NULL,
		updated_at      DATETIME(6)    NOT NULL,
		INDEX idx_orders_created (created_at),
		INDEX idx_orders_status (status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   CHAR(36)       NOT NULL,
		line_no    INT            NOT NULL,
		product_id VARCHAR(64)    NOT NULL,
		size       VARCHAR(32)    NOT NULL,
		color      VARCHAR(64)    NOT NULL,
		quantity   INT            NOT NULL,
		unit_price DECIMAL(12, 2) NOT NULL,
		PRIMARY KEY (order_id, line_no)
	)`,
}

// Migrate creates the tables the adapter needs if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

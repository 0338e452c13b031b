package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Order is one row of the order log.
type Order struct {
	OrderID    int64
	Symbol     string
	Action     string
	Qty        float64
	LimitPrice float64
	Status     string
	Remaining  float64
	SessionID  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderLog records placed orders and their latest status.
type OrderLog struct {
	db *sql.DB
}

// RecordOrder inserts an order or, when the id already exists (a
// modification), replaces its terms and keeps its status.
func (l *OrderLog) RecordOrder(ctx context.Context, o Order) error {
	status := o.Status
	if status == "" {
		status = "PendingSubmit"
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, symbol, action, qty, limit_price, status, remaining, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(order_id) DO UPDATE SET
			action = excluded.action,
			qty = excluded.qty,
			limit_price = excluded.limit_price,
			updated_at = CURRENT_TIMESTAMP
	`, o.OrderID, o.Symbol, o.Action, o.Qty, o.LimitPrice, status, o.Qty, o.SessionID)
	if err != nil {
		return fmt.Errorf("record order %d: %w", o.OrderID, err)
	}
	return nil
}

// UpdateOrderStatus stores the latest broker status for an order.
func (l *OrderLog) UpdateOrderStatus(ctx context.Context, orderID int64, status string, remaining float64) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, remaining = ?, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ?
	`, status, remaining, orderID)
	if err != nil {
		return fmt.Errorf("update order %d: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOrder loads one order.
func (l *OrderLog) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	var (
		o       Order
		session sql.NullString
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT order_id, symbol, action, qty, limit_price, status, COALESCE(remaining, 0), session_id, created_at, updated_at
		FROM orders WHERE order_id = ?
	`, orderID).Scan(&o.OrderID, &o.Symbol, &o.Action, &o.Qty, &o.LimitPrice, &o.Status, &o.Remaining, &session, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	o.SessionID = session.String
	return o, nil
}

// ListOrders returns the most recent orders first.
func (l *OrderLog) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT order_id, symbol, action, qty, limit_price, status, COALESCE(remaining, 0), session_id, created_at, updated_at
		FROM orders
		ORDER BY order_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var (
			o       Order
			session sql.NullString
		)
		if err := rows.Scan(&o.OrderID, &o.Symbol, &o.Action, &o.Qty, &o.LimitPrice, &o.Status, &o.Remaining, &session, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.SessionID = session.String
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

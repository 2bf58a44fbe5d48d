package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CreateOrderParams drives the atomic cart-to-order conversion. When
// PaymentRef is set the insert claims the correlation key; a conflict means
// another delivery of the same payment already produced the order and the
// call fails with ErrOrderExists. When ClearCart is set the buyer's cart rows
// are deleted in the same transaction as the order and item inserts.
type CreateOrderParams struct {
	UserID          int64
	Status          models.OrderStatus
	PaymentRef      string
	ShippingAddress string
	BillingAddress  string
	ClearCart       bool
}

// CreateOrderFromCart freezes the buyer's cart into an order. Prices are read
// once, inside the transaction, and stored as price_at_time; later catalog
// changes never touch the created order.
func (s *Store) CreateOrderFromCart(ctx context.Context, p CreateOrderParams) (*models.Order, []models.OrderItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var lines []models.PricedCartItem
	err = tx.SelectContext(ctx, &lines, `
		SELECT ci.*, p.name AS product_name, p.price AS unit_price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at
		FOR UPDATE OF ci`, p.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, nil, models.ErrEmptyCart
	}

	var total int64
	for _, line := range lines {
		total += line.UnitPrice * int64(line.Quantity)
	}

	var paymentRef sql.NullString
	if p.PaymentRef != "" {
		paymentRef = sql.NullString{String: p.PaymentRef, Valid: true}
	}

	var order models.Order
	err = tx.GetContext(ctx, &order, `
		INSERT INTO orders (id, user_id, status, total_amount, payment_ref, shipping_address, billing_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_ref) WHERE payment_ref IS NOT NULL DO NOTHING
		RETURNING *`,
		uuid.New().String(), p.UserID, p.Status, total, paymentRef, p.ShippingAddress, p.BillingAddress)
	if err == sql.ErrNoRows {
		return nil, nil, models.ErrOrderExists
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, models.ErrOrderExists
		}
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		item := models.OrderItem{
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			PriceAtTime: line.UnitPrice,
		}
		err = tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, quantity, price_at_time)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.PriceAtTime)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create order item: %w", err)
		}
		items = append(items, item)
	}

	if p.ClearCart {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", p.UserID); err != nil {
			return nil, nil, fmt.Errorf("failed to clear cart: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &order, items, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUser retrieves an order only if the given buyer owns it.
func (s *Store) GetOrderForUser(ctx context.Context, id string, userID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2", id, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByPaymentRef retrieves the order holding a payment correlation key.
func (s *Store) GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE payment_ref = $1", ref)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment ref %s: %w", ref, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByUser retrieves a buyer's orders, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// ListOrdersBySeller retrieves orders containing at least one of the seller's
// products.
func (s *Store) ListOrdersBySeller(ctx context.Context, sellerID int64, page, perPage int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT DISTINCT o.*
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		WHERE p.seller_id = $1
		ORDER BY o.created_at DESC
		OFFSET $2 LIMIT $3`, sellerID, (page-1)*perPage, perPage)
	return orders, err
}

// ListOrders retrieves all orders, optionally filtered by status.
func (s *Store) ListOrders(ctx context.Context, status *models.OrderStatus, page, perPage int) ([]models.Order, error) {
	var orders []models.Order
	if status != nil {
		err := s.db.SelectContext(ctx, &orders, `
			SELECT * FROM orders WHERE status = $1
			ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
			*status, (page-1)*perPage, perPage)
		return orders, err
	}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC OFFSET $1 LIMIT $2",
		(page-1)*perPage, perPage)
	return orders, err
}

// OrderContainsSellerProduct reports whether the order holds at least one
// item sold by the given seller.
func (s *Store) OrderContainsSellerProduct(ctx context.Context, orderID string, sellerID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = $1 AND p.seller_id = $2
		)`, orderID, sellerID)
	return exists, err
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// OrderMutation describes the write UpdateOrderLocked applies after the
// callback validated the transition. Nil pointer fields keep current values.
// ClearCartUserID, when positive, deletes that buyer's cart rows in the same
// transaction as the status update.
type OrderMutation struct {
	Status          models.OrderStatus
	ShippingAddress *string
	BillingAddress  *string
	PaymentRef      *string
	ClearCartUserID int64
}

// OrderUpdateFunc inspects the current row (held under a row lock) and
// returns the mutation to apply, or nil for no write.
type OrderUpdateFunc func(current models.Order) (*OrderMutation, error)

// UpdateOrderLocked serializes writers on one order: it locks the row with
// SELECT ... FOR UPDATE, lets the callback decide the transition against the
// current state, and commits the mutation atomically. Concurrent transition
// requests against the same order therefore cannot both read the same
// current status.
func (s *Store) UpdateOrderLocked(ctx context.Context, orderID string, fn OrderUpdateFunc) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	mut, err := fn(order)
	if err != nil {
		return nil, err
	}
	if mut == nil {
		return &order, tx.Commit()
	}

	shipping := order.ShippingAddress
	if mut.ShippingAddress != nil {
		shipping = *mut.ShippingAddress
	}
	billing := order.BillingAddress
	if mut.BillingAddress != nil {
		billing = *mut.BillingAddress
	}
	paymentRef := order.PaymentRef
	if mut.PaymentRef != nil {
		paymentRef = sql.NullString{String: *mut.PaymentRef, Valid: true}
	}

	var updated models.Order
	err = tx.GetContext(ctx, &updated, `
		UPDATE orders
		SET status = $1, shipping_address = $2, billing_address = $3, payment_ref = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING *`,
		mut.Status, shipping, billing, paymentRef, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if mut.ClearCartUserID > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", mut.ClearCartUserID); err != nil {
			return nil, fmt.Errorf("failed to clear cart: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CountOrdersByStatus aggregates order counts per status.
func (s *Store) CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT status, COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int64)
	for rows.Next() {
		var status models.OrderStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// DeliveredRevenue sums total_amount over delivered orders.
func (s *Store) DeliveredRevenue(ctx context.Context) (int64, error) {
	var revenue int64
	err := s.db.GetContext(ctx, &revenue,
		"SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE status = $1",
		models.OrderStatusDelivered)
	return revenue, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

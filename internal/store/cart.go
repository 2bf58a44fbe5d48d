package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace/internal/models"
)

// UpsertCartItem adds quantity to the buyer's line for the product, creating
// the line if it does not exist. The merge happens in a single statement so
// concurrent adds for the same line cannot lose updates.
func (s *Store) UpsertCartItem(ctx context.Context, userID int64, productID string, quantity int) (*models.CartItem, error) {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING *`

	var item models.CartItem
	if err := s.db.GetContext(ctx, &item, query, userID, productID, quantity); err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return &item, nil
}

// GetCartItem retrieves a cart line scoped to its owner.
func (s *Store) GetCartItem(ctx context.Context, userID int64, itemID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE id = $1 AND user_id = $2", itemID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateCartItemQuantity sets the quantity of an owned cart line.
func (s *Store) UpdateCartItemQuantity(ctx context.Context, userID int64, itemID string, quantity int) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, `
		UPDATE cart_items SET quantity = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING *`, quantity, itemID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteCartItem removes an owned cart line.
func (s *Store) DeleteCartItem(ctx context.Context, userID int64, itemID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND user_id = $2", itemID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	return nil
}

// ClearCart deletes every line of the buyer's cart.
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	return err
}

// ListCart returns the buyer's cart lines joined with current catalog prices.
func (s *Store) ListCart(ctx context.Context, userID int64) ([]models.PricedCartItem, error) {
	var items []models.PricedCartItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT ci.*, p.name AS product_name, p.price AS unit_price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at`, userID)
	return items, err
}

package service

import (
	"context"
	"fmt"

	"marketplace/internal/models"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// CartStore is the storage surface the cart service needs. *store.Store
// satisfies it.
type CartStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	UpsertCartItem(ctx context.Context, userID int64, productID string, quantity int) (*models.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, userID int64, itemID string, quantity int) (*models.CartItem, error)
	DeleteCartItem(ctx context.Context, userID int64, itemID string) error
	ClearCart(ctx context.Context, userID int64) error
	ListCart(ctx context.Context, userID int64) ([]models.PricedCartItem, error)
}

// CartService handles per-buyer cart mutations. Every operation is scoped to
// the owning buyer; there is no cross-buyer visibility.
type CartService struct {
	store  CartStore
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// AddItem merges quantity into the buyer's existing line for the product, or
// creates the line.
func (s *CartService) AddItem(ctx context.Context, userID int64, productID string, quantity int) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if quantity <= 0 {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}

	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	item, err := s.store.UpsertCartItem(ctx, userID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	s.logger.Debug("Cart item added",
		zap.Int64("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", item.Quantity))
	return item, nil
}

// UpdateItem sets the quantity of an owned cart line.
func (s *CartService) UpdateItem(ctx context.Context, userID int64, itemID string, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	return s.store.UpdateCartItemQuantity(ctx, userID, itemID, quantity)
}

// RemoveItem deletes an owned cart line.
func (s *CartService) RemoveItem(ctx context.Context, userID int64, itemID string) error {
	return s.store.DeleteCartItem(ctx, userID, itemID)
}

// Clear deletes all of the buyer's cart lines.
func (s *CartService) Clear(ctx context.Context, userID int64) error {
	return s.store.ClearCart(ctx, userID)
}

// List returns the buyer's cart lines with current catalog prices.
func (s *CartService) List(ctx context.Context, userID int64) ([]models.PricedCartItem, error) {
	items, err := s.store.ListCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.PricedCartItem{}
	}
	return items, nil
}

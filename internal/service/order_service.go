package service

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/broker"
	"marketplace/internal/lifecycle"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// OrderStore is the storage surface for order reads and transitions.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderForUser(ctx context.Context, id string, userID int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrdersBySeller(ctx context.Context, sellerID int64, page, perPage int) ([]models.Order, error)
	ListOrders(ctx context.Context, status *models.OrderStatus, page, perPage int) ([]models.Order, error)
	OrderContainsSellerProduct(ctx context.Context, orderID string, sellerID int64) (bool, error)
	UpdateOrderLocked(ctx context.Context, orderID string, fn store.OrderUpdateFunc) (*models.Order, error)
	CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int64, error)
	DeliveredRevenue(ctx context.Context) (int64, error)
}

// AnalyticsCache serves the precomputed order analytics projection.
type AnalyticsCache interface {
	GetOrderAnalytics(ctx context.Context) (*models.OrderAnalytics, error)
}

// OrderItemDetail is an order line enriched with the current catalog name.
// The name is display metadata only; the frozen price stays on the item.
type OrderItemDetail struct {
	models.OrderItem
	ProductName string `json:"product_name"`
}

// OrderDetail is an order together with its line items.
type OrderDetail struct {
	models.Order
	Items []OrderItemDetail `json:"items"`
}

// OrderService exposes role-scoped order reads and status transitions.
type OrderService struct {
	store     OrderStore
	analytics AnalyticsCache
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service. analytics may be nil; the
// analytics endpoint then always computes from the database.
func NewOrderService(store OrderStore, analytics AnalyticsCache, publisher *broker.EventPublisher) *OrderService {
	return &OrderService{
		store:     store,
		analytics: analytics,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ListBuyerOrders returns the orders placed by the given buyer.
func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID int64) ([]models.Order, error) {
	return s.store.ListOrdersByUser(ctx, buyerID)
}

// GetBuyerOrder returns one of the buyer's orders with its items. Orders
// belonging to other buyers are indistinguishable from absent ones.
func (s *OrderService) GetBuyerOrder(ctx context.Context, buyerID int64, orderID string) (*OrderDetail, error) {
	order, err := s.store.GetOrderForUser(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}
	return s.orderDetail(ctx, order)
}

// ListSellerOrders returns a page of orders containing at least one of the
// seller's products.
func (s *OrderService) ListSellerOrders(ctx context.Context, sellerID int64, page, perPage int) ([]models.Order, error) {
	page, perPage = normalizePage(page, perPage)
	return s.store.ListOrdersBySeller(ctx, sellerID, page, perPage)
}

// GetSellerOrder returns an order with its items, visible only when it
// contains one of the seller's products. Foreign orders are reported as not
// found rather than forbidden, so sellers cannot probe for order ids.
func (s *OrderService) GetSellerOrder(ctx context.Context, sellerID int64, orderID string) (*OrderDetail, error) {
	if err := s.requireSellerOrder(ctx, sellerID, orderID); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// UpdateStatusAsSeller moves an order along the lifecycle on behalf of a
// seller. Visibility follows the same rule as GetSellerOrder.
func (s *OrderService) UpdateStatusAsSeller(ctx context.Context, sellerID int64, orderID string, target models.OrderStatus) (*models.Order, error) {
	if err := s.requireSellerOrder(ctx, sellerID, orderID); err != nil {
		return nil, err
	}
	return s.transition(ctx, models.RoleSeller, orderID, target, nil)
}

func (s *OrderService) requireSellerOrder(ctx context.Context, sellerID int64, orderID string) error {
	ok, err := s.store.OrderContainsSellerProduct(ctx, orderID, sellerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	return nil
}

// ListAllOrders returns a page of orders, optionally filtered by status.
// Supplier-facing.
func (s *OrderService) ListAllOrders(ctx context.Context, status *models.OrderStatus, page, perPage int) ([]models.Order, error) {
	if status != nil && !status.Valid() {
		return nil, &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", string(*status))}
	}
	page, perPage = normalizePage(page, perPage)
	return s.store.ListOrders(ctx, status, page, perPage)
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

// GetOrder returns any order with its items. Supplier-facing.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderDetail, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.orderDetail(ctx, order)
}

// orderDetail loads an order's items and joins in the catalog product names.
func (s *OrderService) orderDetail(ctx context.Context, order *models.Order) (*OrderDetail, error) {
	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	detail := &OrderDetail{Order: *order, Items: make([]OrderItemDetail, 0, len(items))}
	for _, item := range items {
		detail.Items = append(detail.Items, OrderItemDetail{
			OrderItem:   item,
			ProductName: names[item.ProductID],
		})
	}
	return detail, nil
}

// AddressUpdate optionally rewrites order addresses together with a
// transition. Nil fields keep current values.
type AddressUpdate struct {
	ShippingAddress *string
	BillingAddress  *string
}

// ApproveOrder ships a confirmed order. This is the supplier's bulk approval
// action over the orders-needing-approval queue.
func (s *OrderService) ApproveOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, models.RoleSupplier, orderID, models.OrderStatusShipped, nil)
}

// UpdateStatusAsSupplier moves an order along the lifecycle on behalf of a
// supplier, optionally correcting its addresses in the same write.
func (s *OrderService) UpdateStatusAsSupplier(ctx context.Context, orderID string, target models.OrderStatus, addr *AddressUpdate) (*models.Order, error) {
	return s.transition(ctx, models.RoleSupplier, orderID, target, addr)
}

// CancelOrder cancels a non-terminal order on behalf of a supplier.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, models.RoleSupplier, orderID, models.OrderStatusCancelled, nil)
}

// transition applies one role-checked status change under the order's row
// lock. Repeating the current status is an idempotent no-op that returns the
// unchanged order, unless an address update makes the write necessary.
func (s *OrderService) transition(ctx context.Context, role models.Role, orderID string, target models.OrderStatus, addr *AddressUpdate) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.transition")
	defer span.End()

	if !target.Valid() {
		return nil, &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", string(target))}
	}

	var from models.OrderStatus
	var changed bool

	order, err := s.store.UpdateOrderLocked(ctx, orderID, func(cur models.Order) (*store.OrderMutation, error) {
		noop, checkErr := lifecycle.Check(role, cur.Status, target)
		if checkErr != nil {
			return nil, checkErr
		}
		mut := &store.OrderMutation{Status: target}
		if addr != nil {
			mut.ShippingAddress = addr.ShippingAddress
			mut.BillingAddress = addr.BillingAddress
		}
		if noop {
			if mut.ShippingAddress == nil && mut.BillingAddress == nil {
				return nil, nil
			}
			return mut, nil
		}
		from = cur.Status
		changed = true
		return mut, nil
	})
	if err != nil {
		var invalid *models.InvalidTransitionError
		if errors.As(err, &invalid) {
			util.OrderTransitionsRejected.WithLabelValues(string(role)).Inc()
		}
		return nil, err
	}

	if changed {
		util.OrderTransitionsTotal.WithLabelValues(string(from), string(target), string(role)).Inc()
		s.logger.Info("Order status updated",
			zap.String("order_id", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.String("role", string(role)))

		if s.publisher != nil {
			if pubErr := s.publisher.PublishStatusChanged(ctx, order, from, role); pubErr != nil {
				s.logger.Error("Failed to publish status change event", zap.Error(pubErr))
			}
		}
	}

	return order, nil
}

// GetAnalytics returns the supplier dashboard counters. It reads the cached
// projection first and falls back to counting in the database when the cache
// is cold or unavailable.
func (s *OrderService) GetAnalytics(ctx context.Context) (*models.OrderAnalytics, error) {
	if s.analytics != nil {
		analytics, err := s.analytics.GetOrderAnalytics(ctx)
		if err == nil {
			return analytics, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("Analytics cache unavailable, falling back to database", zap.Error(err))
		}
	}
	return s.computeAnalytics(ctx)
}

func (s *OrderService) computeAnalytics(ctx context.Context) (*models.OrderAnalytics, error) {
	counts, err := s.store.CountOrdersByStatus(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.store.DeliveredRevenue(ctx)
	if err != nil {
		return nil, err
	}

	analytics := &models.OrderAnalytics{
		PendingOrders:   counts[models.OrderStatusPending],
		ConfirmedOrders: counts[models.OrderStatusConfirmed],
		ShippedOrders:   counts[models.OrderStatusShipped],
		DeliveredOrders: counts[models.OrderStatusDelivered],
		CancelledOrders: counts[models.OrderStatusCancelled],
		TotalRevenue:    revenue,
	}
	for _, n := range counts {
		analytics.TotalOrders += n
	}
	analytics.OrdersNeedingApproval = analytics.ConfirmedOrders
	return analytics, nil
}

package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"marketplace/internal/broker"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// CheckoutStore is the storage surface the orchestrator needs.
type CheckoutStore interface {
	CreateOrderFromCart(ctx context.Context, p store.CreateOrderParams) (*models.Order, []models.OrderItem, error)
}

// CheckoutRequest carries the buyer-supplied checkout details.
type CheckoutRequest struct {
	Email           string `json:"email" binding:"required"`
	ShippingAddress string `json:"shipping_address" binding:"required"`
	BillingAddress  string `json:"billing_address,omitempty"`
}

// CheckoutResponse is returned to the buyer with the payment redirect target.
type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	PaymentURL  string `json:"payment_url"`
	TotalAmount int64  `json:"total_amount"`
	Status      string `json:"status"`
}

// CheckoutService freezes a cart into a pending order and hands off to the
// payment provider. The cart is deliberately left intact here: it is cleared
// only when a payment confirmation is reconciled, so an abandoned or failed
// session does not destroy the buyer's selections.
type CheckoutService struct {
	store     CheckoutStore
	payments  PaymentClient
	publisher *broker.EventPublisher
	returnURL string
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(store CheckoutStore, payments PaymentClient, publisher *broker.EventPublisher, returnURL string) *CheckoutService {
	return &CheckoutService{
		store:     store,
		payments:  payments,
		publisher: publisher,
		returnURL: returnURL,
		logger:    util.GetLogger(),
	}
}

// Checkout converts the buyer's cart into a pending order with frozen prices
// and requests a payment session. Prices are read once, inside the order
// creation transaction, and never recomputed.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, req CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	billing := req.BillingAddress
	if billing == "" {
		billing = req.ShippingAddress
	}

	order, items, err := s.store.CreateOrderFromCart(ctx, store.CreateOrderParams{
		UserID:          userID,
		Status:          models.OrderStatusPending,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		ClearCart:       false,
	})
	if err != nil {
		if err == models.ErrEmptyCart {
			util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
			return nil, err
		}
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.WithLabelValues("checkout").Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total_amount", order.TotalAmount))

	if s.publisher != nil {
		if err := s.publisher.PublishOrderCreated(ctx, order, items); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	session, err := s.payments.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		Amount:     order.TotalAmount,
		OrderID:    order.ID,
		BuyerEmail: req.Email,
		ReturnURL:  s.returnURL,
		Metadata: map[string]string{
			"order_id": order.ID,
			"user_id":  strconv.FormatInt(userID, 10),
		},
	})
	if err != nil {
		// The order stays pending and the cart stays intact; a definitive
		// outcome can only arrive through a reconciled payment event.
		util.CheckoutsFailedTotal.WithLabelValues("payment_session").Inc()
		s.logger.Error("Payment session creation failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	return &CheckoutResponse{
		OrderID:     order.ID,
		PaymentURL:  session.CheckoutURL,
		TotalAmount: order.TotalAmount,
		Status:      "payment_pending",
	}, nil
}

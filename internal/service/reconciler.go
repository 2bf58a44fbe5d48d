package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"marketplace/internal/broker"
	"marketplace/internal/lifecycle"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// Result statuses. Ignored outcomes are successes: the event source is an
// at-least-once feed and duplicate, stale, or unrelated events are expected
// traffic, not failures.
const (
	ResultProcessed = "processed"
	ResultIgnored   = "ignored"
)

// Result reports what a webhook delivery did.
type Result struct {
	Status  string `json:"status"`
	Action  string `json:"action,omitempty"`
	Reason  string `json:"reason,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

// ReconcilerStore is the storage surface the reconciler needs.
type ReconcilerStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	CreateOrderFromCart(ctx context.Context, p store.CreateOrderParams) (*models.Order, []models.OrderItem, error)
	UpdateOrderLocked(ctx context.Context, orderID string, fn store.OrderUpdateFunc) (*models.Order, error)
}

// Reconciler applies asynchronous payment provider events to order state.
// Every effect is an idempotent state transition applied under a per-order
// row lock, so duplicate and out-of-order deliveries are safe to replay.
type Reconciler struct {
	store         ReconcilerStore
	publisher     *broker.EventPublisher
	webhookSecret string
	logger        *zap.Logger
}

// NewReconciler creates a new payment event reconciler.
func NewReconciler(store ReconcilerStore, publisher *broker.EventPublisher, webhookSecret string) *Reconciler {
	return &Reconciler{
		store:         store,
		publisher:     publisher,
		webhookSecret: webhookSecret,
		logger:        util.GetLogger(),
	}
}

// ProcessWebhook authenticates, correlates, and applies one payment event.
// Returned errors are retriable by the deliverer; no partial effect is
// observable after a failed apply.
func (r *Reconciler) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.ProcessWebhook")
	defer span.End()

	if !verifyWebhookSignature(payload, signature, r.webhookSecret) {
		util.WebhookSignatureFailures.Inc()
		return nil, models.ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &models.ValidationError{Field: "payload", Reason: "is not valid JSON"}
	}

	orderID := env.Data.Metadata["order_id"]
	userID, _ := strconv.ParseInt(env.Data.Metadata["user_id"], 10, 64)

	if orderID == "" && userID == 0 {
		// Not correlatable to marketplace state; likely an unrelated flow
		// (e.g. a subscription event).
		return r.ignored(env.Type, "", "no correlation metadata"), nil
	}

	order, err := r.locateOrder(ctx, orderID, env.Data.PaymentID)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case eventPaymentSucceeded:
		if order == nil {
			return r.materializeOrder(ctx, &env, userID)
		}
		return r.applySucceeded(ctx, &env, order)

	case eventPaymentFailed:
		if order == nil {
			return r.ignored(env.Type, "", "no matching order"), nil
		}
		return r.applyCancellation(ctx, env.Type, order,
			map[models.OrderStatus]bool{models.OrderStatusPending: true},
			"order_cancelled", false)

	case eventPaymentRefunded:
		if order == nil {
			return r.ignored(env.Type, "", "no matching order"), nil
		}
		return r.applyCancellation(ctx, env.Type, order,
			map[models.OrderStatus]bool{
				models.OrderStatusConfirmed: true,
				models.OrderStatusShipped:   true,
			},
			"order_refunded", true)

	default:
		return r.ignored(env.Type, "", fmt.Sprintf("unknown event type: %s", env.Type)), nil
	}
}

// locateOrder resolves the correlation key to an existing order, or nil when
// no order exists yet. An explicit order id that resolves to nothing is a
// NotFound error, matching the synchronous lookup semantics; a payment
// reference that resolves to nothing is the normal pre-checkout race.
func (r *Reconciler) locateOrder(ctx context.Context, orderID, paymentID string) (*models.Order, error) {
	if orderID != "" {
		return r.store.GetOrderByID(ctx, orderID)
	}
	if paymentID != "" {
		order, err := r.store.GetOrderByPaymentRef(ctx, paymentID)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return order, err
	}
	return nil, nil
}

// materializeOrder converts the buyer's current cart into an order already in
// confirmed state: the external confirmation arrived before (or without) a
// local checkout, and payment is a precondition of this path, so there is no
// meaningful pending state to pass through. Order creation, item snapshot,
// and cart clearing commit in one transaction; the unique payment reference
// makes concurrent duplicate deliveries lose the insert race instead of
// creating a second order.
func (r *Reconciler) materializeOrder(ctx context.Context, env *webhookEnvelope, userID int64) (*Result, error) {
	if userID == 0 {
		return r.ignored(env.Type, "", "no correlation metadata"), nil
	}

	billing := env.Data.Billing.format()
	shipping := env.Data.ShippingAddress.format()
	if shipping == "" {
		shipping = billing
	}

	order, items, err := r.store.CreateOrderFromCart(ctx, store.CreateOrderParams{
		UserID:          userID,
		Status:          models.OrderStatusConfirmed,
		PaymentRef:      env.Data.PaymentID,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		ClearCart:       true,
	})
	if errors.Is(err, models.ErrEmptyCart) {
		return r.ignored(env.Type, "", "cart is empty, nothing to materialize"), nil
	}
	if errors.Is(err, models.ErrOrderExists) {
		existing, lookupErr := r.store.GetOrderByPaymentRef(ctx, env.Data.PaymentID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return r.ignored(env.Type, existing.ID, fmt.Sprintf("order already in status %s", existing.Status)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to materialize order: %w", err)
	}

	util.OrdersCreatedTotal.WithLabelValues("webhook").Inc()
	util.WebhookEventsTotal.WithLabelValues(env.Type, ResultProcessed).Inc()
	r.logger.Info("Order materialized from cart",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total_amount", order.TotalAmount))

	if r.publisher != nil {
		if err := r.publisher.PublishOrderCreated(ctx, order, items); err != nil {
			r.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return &Result{
		Status:  ResultProcessed,
		Action:  "order_materialized",
		OrderID: order.ID,
	}, nil
}

// applySucceeded confirms a pending order, populating addresses from the
// event payload and clearing the buyer's cart in the same transaction.
// Against an order that already moved on it is a reported no-op.
func (r *Reconciler) applySucceeded(ctx context.Context, env *webhookEnvelope, order *models.Order) (*Result, error) {
	var result *Result
	var from models.OrderStatus

	updated, err := r.store.UpdateOrderLocked(ctx, order.ID, func(cur models.Order) (*store.OrderMutation, error) {
		noop, checkErr := lifecycle.Check(models.RoleSystem, cur.Status, models.OrderStatusConfirmed)
		if noop || checkErr != nil {
			result = r.ignored(env.Type, cur.ID, fmt.Sprintf("order already in status %s", cur.Status))
			return nil, nil
		}

		from = cur.Status
		mut := &store.OrderMutation{
			Status:          models.OrderStatusConfirmed,
			ClearCartUserID: cur.UserID,
		}
		billing := env.Data.Billing.format()
		shipping := env.Data.ShippingAddress.format()
		if billing != "" {
			mut.BillingAddress = &billing
			if shipping == "" {
				// Billing doubles as shipping when no separate address came.
				shipping = billing
			}
		}
		if shipping != "" {
			mut.ShippingAddress = &shipping
		}
		if env.Data.PaymentID != "" && !cur.PaymentRef.Valid {
			ref := env.Data.PaymentID
			mut.PaymentRef = &ref
		}

		result = &Result{Status: ResultProcessed, Action: "order_confirmed", OrderID: cur.ID}
		return mut, nil
	})
	if err != nil {
		return nil, err
	}

	r.finish(ctx, env.Type, result, updated, from)
	return result, nil
}

// applyCancellation moves an order to cancelled when its current status is in
// allowedFrom; anything else is a reported no-op. The buyer's cart is never
// touched on payment failure, so checkout can be retried.
func (r *Reconciler) applyCancellation(ctx context.Context, eventType string, order *models.Order, allowedFrom map[models.OrderStatus]bool, action string, refund bool) (*Result, error) {
	var result *Result
	var from models.OrderStatus

	updated, err := r.store.UpdateOrderLocked(ctx, order.ID, func(cur models.Order) (*store.OrderMutation, error) {
		if cur.Status == models.OrderStatusCancelled {
			result = r.ignored(eventType, cur.ID, "order already in status cancelled")
			return nil, nil
		}
		if !allowedFrom[cur.Status] {
			reason := fmt.Sprintf("order already in status %s", cur.Status)
			if refund {
				reason = fmt.Sprintf("order in status %s, cannot refund", cur.Status)
			}
			result = r.ignored(eventType, cur.ID, reason)
			return nil, nil
		}
		if _, checkErr := lifecycle.Check(models.RoleSystem, cur.Status, models.OrderStatusCancelled); checkErr != nil {
			return nil, checkErr
		}

		from = cur.Status
		result = &Result{Status: ResultProcessed, Action: action, OrderID: cur.ID}
		return &store.OrderMutation{Status: models.OrderStatusCancelled}, nil
	})
	if err != nil {
		return nil, err
	}

	r.finish(ctx, eventType, result, updated, from)
	return result, nil
}

func (r *Reconciler) finish(ctx context.Context, eventType string, result *Result, order *models.Order, from models.OrderStatus) {
	if result == nil || result.Status != ResultProcessed {
		return
	}

	util.WebhookEventsTotal.WithLabelValues(eventType, ResultProcessed).Inc()
	util.OrderTransitionsTotal.WithLabelValues(string(from), string(order.Status), string(models.RoleSystem)).Inc()
	r.logger.Info("Payment event applied",
		zap.String("order_id", order.ID),
		zap.String("event_type", eventType),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)))

	if r.publisher != nil {
		if err := r.publisher.PublishStatusChanged(ctx, order, from, models.RoleSystem); err != nil {
			r.logger.Error("Failed to publish status change event", zap.Error(err))
		}
	}
}

func (r *Reconciler) ignored(eventType, orderID, reason string) *Result {
	util.WebhookEventsTotal.WithLabelValues(eventType, ResultIgnored).Inc()
	r.logger.Info("Payment event ignored",
		zap.String("event_type", eventType),
		zap.String("order_id", orderID),
		zap.String("reason", reason))
	return &Result{Status: ResultIgnored, Reason: reason, OrderID: orderID}
}

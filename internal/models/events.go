package models

import "time"

// Event types published to the order events topic.
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
	EventTypeOrderShipped   = "ORDER_SHIPPED"
	EventTypeOrderDelivered = "ORDER_DELIVERED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created, either at checkout
// (pending) or materialized from a cart by a payment confirmation (confirmed).
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	UserID      int64           `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published for every applied lifecycle transition.
// EventType distinguishes the target status.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID     string      `json:"order_id"`
	UserID      int64       `json:"user_id"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
	Actor       Role        `json:"actor"`
	TotalAmount int64       `json:"total_amount"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	PriceAtTime int64  `json:"price_at_time"`
}

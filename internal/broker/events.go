package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing order lifecycle events.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes an OrderCreated event for a new order.
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	itemData := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		itemData = append(itemData, models.OrderItemData{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			PriceAtTime: item.PriceAtTime,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Items:       itemData,
	}
	return ep.producer.PublishEvent(ctx, eventKey(order.ID), event)
}

// PublishStatusChanged publishes the event matching an applied transition.
func (ep *EventPublisher) PublishStatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus, actor models.Role) error {
	eventType, ok := statusEventTypes[order.Status]
	if !ok {
		return fmt.Errorf("no event type for status %s", order.Status)
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent:   newBaseEvent(eventType),
		OrderID:     order.ID,
		UserID:      order.UserID,
		From:        from,
		To:          order.Status,
		Actor:       actor,
		TotalAmount: order.TotalAmount,
	}
	return ep.producer.PublishEvent(ctx, eventKey(order.ID), event)
}

var statusEventTypes = map[models.OrderStatus]string{
	models.OrderStatusConfirmed: models.EventTypeOrderConfirmed,
	models.OrderStatusShipped:   models.EventTypeOrderShipped,
	models.OrderStatusDelivered: models.EventTypeOrderDelivered,
	models.OrderStatusCancelled: models.EventTypeOrderCancelled,
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func eventKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// EventHandler routes consumed order events to registered callbacks.
type EventHandler struct {
	onOrderCreated  func(context.Context, *models.OrderCreatedEvent) error
	onStatusChanged func(context.Context, *models.OrderStatusChangedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderCreated registers a handler for OrderCreated events.
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnStatusChanged registers a handler for status change events.
func (eh *EventHandler) OnStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onStatusChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeOrderConfirmed, models.EventTypeOrderShipped,
		models.EventTypeOrderDelivered, models.EventTypeOrderCancelled:
		if eh.onStatusChanged != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal status change event: %w", err)
			}
			return eh.onStatusChanged(ctx, &event)
		}
	}

	return nil
}

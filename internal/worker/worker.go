package worker

import (
	"context"

	"marketplace/internal/broker"
	"marketplace/internal/models"
	"marketplace/internal/redisclient"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// AnalyticsWorker consumes order lifecycle events and maintains the cached
// analytics projection. It is eventually consistent with the database; the
// projection is reseeded from DB aggregates at startup, so counter drift
// from redeliveries does not accumulate across restarts.
type AnalyticsWorker struct {
	consumer *broker.Consumer
	redis    *redisclient.Client
	logger   *zap.Logger
}

// NewAnalyticsWorker creates a new analytics projection worker.
func NewAnalyticsWorker(consumer *broker.Consumer, redis *redisclient.Client) *AnalyticsWorker {
	return &AnalyticsWorker{
		consumer: consumer,
		redis:    redis,
		logger:   util.GetLogger(),
	}
}

// Start consumes order events until ctx is cancelled.
func (w *AnalyticsWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()
	handler.OnOrderCreated(w.handleOrderCreated)
	handler.OnStatusChanged(w.handleStatusChanged)

	w.logger.Info("Analytics worker started")
	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

func (w *AnalyticsWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	if err := w.redis.IncrOrderStatus(ctx, event.Status, 1); err != nil {
		// Returning the error would stall the partition behind a redis
		// outage; the projection is reseeded on restart anyway.
		w.logger.Error("Failed to project OrderCreated event",
			zap.String("order_id", event.OrderID), zap.Error(err))
	}
	return nil
}

func (w *AnalyticsWorker) handleStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	if err := w.redis.MoveOrderStatus(ctx, event.From, event.To); err != nil {
		w.logger.Error("Failed to project status change event",
			zap.String("order_id", event.OrderID), zap.Error(err))
		return nil
	}
	if event.To == models.OrderStatusDelivered {
		if err := w.redis.AddDeliveredRevenue(ctx, event.TotalAmount); err != nil {
			w.logger.Error("Failed to project delivered revenue",
				zap.String("order_id", event.OrderID), zap.Error(err))
		}
	}
	return nil
}

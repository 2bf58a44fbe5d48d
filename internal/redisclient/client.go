package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"marketplace/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	analyticsKey = "analytics:orders"
	revenueField = "revenue_delivered"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// IncrOrderStatus adjusts the projected count for one status.
func (c *Client) IncrOrderStatus(ctx context.Context, status models.OrderStatus, delta int64) error {
	return c.rdb.HIncrBy(ctx, analyticsKey, string(status), delta).Err()
}

// MoveOrderStatus shifts one order between status buckets atomically.
func (c *Client) MoveOrderStatus(ctx context.Context, from, to models.OrderStatus) error {
	pipe := c.rdb.TxPipeline()
	pipe.HIncrBy(ctx, analyticsKey, string(from), -1)
	pipe.HIncrBy(ctx, analyticsKey, string(to), 1)
	_, err := pipe.Exec(ctx)
	return err
}

// AddDeliveredRevenue accumulates revenue from delivered orders.
func (c *Client) AddDeliveredRevenue(ctx context.Context, amount int64) error {
	return c.rdb.HIncrBy(ctx, analyticsKey, revenueField, amount).Err()
}

// GetOrderAnalytics reads the projected supplier dashboard counters.
func (c *Client) GetOrderAnalytics(ctx context.Context) (*models.OrderAnalytics, error) {
	fields, err := c.rdb.HGetAll(ctx, analyticsKey).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("analytics projection %s: %w", analyticsKey, models.ErrNotFound)
	}

	get := func(field string) int64 {
		n, _ := strconv.ParseInt(fields[field], 10, 64)
		return n
	}

	a := &models.OrderAnalytics{
		PendingOrders:   get(string(models.OrderStatusPending)),
		ConfirmedOrders: get(string(models.OrderStatusConfirmed)),
		ShippedOrders:   get(string(models.OrderStatusShipped)),
		DeliveredOrders: get(string(models.OrderStatusDelivered)),
		CancelledOrders: get(string(models.OrderStatusCancelled)),
		TotalRevenue:    get(revenueField),
	}
	a.TotalOrders = a.PendingOrders + a.ConfirmedOrders + a.ShippedOrders + a.DeliveredOrders + a.CancelledOrders
	a.OrdersNeedingApproval = a.ConfirmedOrders
	return a, nil
}

// SeedOrderAnalytics writes a full snapshot of the projection, used at
// startup to sync the counters with the database.
func (c *Client) SeedOrderAnalytics(ctx context.Context, counts map[models.OrderStatus]int64, revenue int64) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, analyticsKey)
	for status, count := range counts {
		pipe.HSet(ctx, analyticsKey, string(status), count)
	}
	pipe.HSet(ctx, analyticsKey, revenueField, revenue)
	_, err := pipe.Exec(ctx)
	return err
}

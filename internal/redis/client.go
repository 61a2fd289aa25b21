package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leokovaski/linkfono-workspace-manager/internal/config"
)

// WebhookEventKeyPrefix namespaces the processed-event markers.
const WebhookEventKeyPrefix = "webhook:event:"

// How long processed webhook event IDs are remembered. Stripe retries
// failed deliveries for up to 3 days, so a week gives comfortable margin.
const webhookEventTTL = 7 * 24 * time.Hour

// Client wraps the Redis client with application-specific methods
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection to Redis
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// MarkEventProcessed records a webhook event ID and reports whether this is
// the first time it has been seen. Uses SETNX so concurrent deliveries of the
// same event race safely: exactly one caller gets first=true.
//
// When Redis is unavailable (nil client) every event is reported as first
// seen; correctness then relies on the database-level idempotency of the
// handlers themselves.
func (c *Client) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	if c == nil || c.rdb == nil {
		return true, nil
	}

	key := WebhookEventKeyPrefix + eventID
	first, err := c.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), webhookEventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	return first, nil
}

// ClearEventProcessed removes a recorded event ID so a failed handler run
// can be retried by the next delivery.
func (c *Client) ClearEventProcessed(ctx context.Context, eventID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, WebhookEventKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to clear event marker: %w", err)
	}
	return nil
}

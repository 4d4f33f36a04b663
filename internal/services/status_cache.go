package services

import (
	"context"
	"fmt"
	"time"

	"bookstore-api/internal/database"

	"github.com/redis/go-redis/v9"
)

// StatusCache shields the gateway's status endpoint from the client's
// 3-second poll loop: recently queried statuses are served from cache and
// polls are rate limited per order.
type StatusCache interface {
	GetStatus(ctx context.Context, orderID string) (string, bool)
	PutStatus(ctx context.Context, orderID, status string)
	AllowPoll(ctx context.Context, orderID string) bool
}

// GatewayStatusCache is the Redis StatusCache implementation
type GatewayStatusCache struct {
	client     *redis.Client
	statusTTL  time.Duration
	pollWindow time.Duration
	pollLimit  int64
}

// NewGatewayStatusCache creates a cache over the shared Redis client
func NewGatewayStatusCache() *GatewayStatusCache {
	return &GatewayStatusCache{
		client:     database.GetRedis(),
		statusTTL:  3 * time.Second,
		pollWindow: 10 * time.Second,
		pollLimit:  5,
	}
}

// GetStatus returns a recently cached gateway status for the order
func (c *GatewayStatusCache) GetStatus(ctx context.Context, orderID string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	key := fmt.Sprintf("gateway_status:%s", orderID)
	status, err := c.client.Get(ctx, key).Result()
	if err != nil {
		// redis.Nil and transport errors both degrade to a cache miss
		return "", false
	}
	return status, true
}

// PutStatus caches a gateway status for the short poll interval
func (c *GatewayStatusCache) PutStatus(ctx context.Context, orderID, status string) {
	if c.client == nil {
		return
	}
	key := fmt.Sprintf("gateway_status:%s", orderID)
	if err := c.client.Set(ctx, key, status, c.statusTTL).Err(); err != nil {
		// Cache writes are best effort; the gateway remains the source of truth
		return
	}
}

// AllowPoll rate limits status polls per order. Degrades open when Redis
// is unavailable so reconciliation is never blocked by the cache.
func (c *GatewayStatusCache) AllowPoll(ctx context.Context, orderID string) bool {
	if c.client == nil {
		return true
	}
	key := fmt.Sprintf("poll_rate:%s", orderID)

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		c.client.Expire(ctx, key, c.pollWindow)
	}
	return count <= c.pollLimit
}

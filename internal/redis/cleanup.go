package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ibs-source/logship/internal/log"
)

// CleanupDeadConsumers removes other consumers idle longer than idleTimeout
// from the group on every stream. Their pending entries become claimable
// again. It returns the number of consumers removed.
func (c *Client) CleanupDeadConsumers(ctx context.Context, idleTimeout time.Duration) int {
	removed := 0
	for _, stream := range c.Streams() {
		n, err := c.cleanupDeadConsumersForStream(ctx, stream, idleTimeout)
		if err != nil {
			c.log.Warn("failed to cleanup dead consumers for stream %s: %v", stream, err)
			continue
		}
		removed += n
	}

	if removed > 0 {
		c.log.Info("Cleaned up %d dead consumers", removed)
	}
	return removed
}

func (c *Client) cleanupDeadConsumersForStream(ctx context.Context, stream string, idleTimeout time.Duration) (int, error) {
	consumers, err := c.rdb.XInfoConsumers(ctx, stream, c.group).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get consumers info: %w", err)
	}

	removed := 0
	for _, consumer := range consumers {
		if !isDead(consumer.Name, consumer.Idle, c.consumer, idleTimeout) {
			continue
		}

		pending, err := c.rdb.XGroupDelConsumer(ctx, stream, c.group, consumer.Name).Result()
		if err != nil {
			c.log.Error("Failed to delete consumer %s from stream %s: %v", consumer.Name, stream, err)
			continue
		}
		c.log.InfoWithFields(log.Fields{
			"stream":   stream,
			"consumer": consumer.Name,
			"idle":     consumer.Idle.String(),
			"pending":  pending,
		}, "Removed dead consumer")
		removed++
	}

	return removed, nil
}

// isDead reports whether a consumer other than self has been idle too long
func isDead(name string, idle time.Duration, self string, idleTimeout time.Duration) bool {
	return name != self && idle > idleTimeout
}

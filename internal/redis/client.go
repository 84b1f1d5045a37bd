// Package redis consumes events from Redis streams through a consumer group
// and acknowledges them with XACK and XDEL once the sink is done with them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ibs-source/logship/internal/config"
	"github.com/ibs-source/logship/internal/log"
)

// Client manages Redis stream operations for one consumer of one group
type Client struct {
	rdb             *redis.Client
	group           string
	consumer        string
	batchSize       int64
	blockTimeout    time.Duration
	claimIdle       time.Duration
	maxDeliveries   int64
	multiStreamMode bool
	log             *log.Logger

	mu      sync.RWMutex
	streams []string
}

// Entry is a stream entry together with the stream it was read from
type Entry struct {
	Stream  string
	Message redis.XMessage
}

// NewClient connects to Redis and joins the consumer group on every stream
func NewClient(cfg *config.RedisConfig, logger *log.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	client := &Client{
		rdb:           rdb,
		group:         cfg.Group,
		consumer:      cfg.Consumer,
		batchSize:     int64(cfg.BatchSize),
		blockTimeout:  cfg.BlockTimeout,
		claimIdle:     cfg.ClaimIdle,
		maxDeliveries: cfg.MaxDeliveries,
		log:           logger,
	}

	if cfg.Stream == "" {
		logger.Info("Multi-stream mode enabled: discovering Redis streams")
		streams, err := client.DiscoverStreams(ctx)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to discover streams: %w", err)
		}
		if len(streams) == 0 {
			logger.Warn("No streams found in Redis, will retry on next refresh")
		} else {
			logger.Info("Discovered %d streams: %v", len(streams), streams)
		}
		client.streams = streams
		client.multiStreamMode = true
	} else {
		logger.Info("Single-stream mode: consuming from stream '%s'", cfg.Stream)
		client.streams = []string{cfg.Stream}
	}

	if err := client.ensureGroups(ctx, client.streams); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	logger.InfoWithFields(log.Fields{
		"group":    client.group,
		"consumer": client.consumer,
	}, "Joined Redis consumer group")
	return client, nil
}

// Streams returns a snapshot of the consumed streams
func (c *Client) Streams() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.streams)
}

// DiscoverStreams lists every stream key with SCAN
func (c *Client) DiscoverStreams(ctx context.Context) ([]string, error) {
	var streams []string
	iter := c.rdb.ScanType(ctx, 0, "*", 100, "stream").Iterator()
	for iter.Next(ctx) {
		streams = append(streams, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan stream keys: %w", err)
	}
	slices.Sort(streams)
	return slices.Compact(streams), nil
}

func (c *Client) ensureGroups(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := c.rdb.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
		if err != nil {
			if strings.HasPrefix(err.Error(), "BUSYGROUP") {
				c.log.Debug("Consumer group '%s' already exists for stream '%s', joining existing group", c.group, stream)
				continue
			}
			return fmt.Errorf("failed to create consumer group for stream %s: %w", stream, err)
		}
		c.log.Info("Created consumer group '%s' for stream '%s'", c.group, stream)
	}
	return nil
}

// ReadBatch fetches new entries from every stream with XREADGROUP. It
// blocks up to the configured block timeout when nothing is available.
func (c *Client) ReadBatch(ctx context.Context) ([]Entry, error) {
	streams := c.Streams()
	if len(streams) == 0 {
		return nil, nil
	}

	streamsArg := make([]string, 0, len(streams)*2)
	streamsArg = append(streamsArg, streams...)
	for range streams {
		streamsArg = append(streamsArg, ">")
	}

	result, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  streamsArg,
		Count:    c.batchSize,
		Block:    c.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup failed: %w", err)
	}

	var entries []Entry
	for _, sr := range result {
		for _, msg := range sr.Messages {
			entries = append(entries, Entry{Stream: sr.Stream, Message: msg})
		}
	}
	return entries, nil
}

// ClaimIdle takes over entries pending longer than the claim idle time.
// Entries delivered more often than the delivery limit are removed instead.
// Entries for which held reports true are still in flight in this process
// and are left alone; held may be nil.
func (c *Client) ClaimIdle(ctx context.Context, held func(stream, id string) bool) ([]Entry, error) {
	var entries []Entry

	for _, stream := range c.Streams() {
		pending, err := c.getPendingMessages(ctx, stream)
		if err != nil {
			c.log.Warn("failed to get pending messages for stream %s: %v", stream, err)
			continue
		}
		pending = withoutHeld(pending, stream, held)
		if len(pending) == 0 {
			continue
		}

		claim, exhausted := splitExhausted(pending, c.maxDeliveries)
		if len(exhausted) > 0 {
			c.log.WarnWithFields(log.Fields{
				"stream":         stream,
				"entries":        len(exhausted),
				"max_deliveries": c.maxDeliveries,
			}, "Dropping entries that exceeded the delivery limit")
			if err := c.AckAndDelete(ctx, stream, exhausted); err != nil {
				c.log.Warn("failed to drop exhausted entries for stream %s: %v", stream, err)
			}
		}
		if len(claim) == 0 {
			continue
		}

		claimed, err := c.claimMessages(ctx, stream, claim)
		if err != nil {
			c.log.Warn("failed to claim messages for stream %s: %v", stream, err)
			continue
		}
		for _, msg := range claimed {
			entries = append(entries, Entry{Stream: stream, Message: msg})
		}
	}

	return entries, nil
}

func (c *Client) getPendingMessages(ctx context.Context, stream string) ([]redis.XPendingExt, error) {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Idle:   c.claimIdle,
		Start:  "-",
		End:    "+",
		Count:  c.batchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xpending failed: %w", err)
	}
	return pending, nil
}

func (c *Client) claimMessages(ctx context.Context, stream string, ids []string) ([]redis.XMessage, error) {
	claimed, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim failed: %w", err)
	}
	return claimed, nil
}

// touchChunk bounds the ids of one XCLAIM JUSTID call
const touchChunk = 1000

// Touch resets the idle time of entries this consumer still works on, so
// that no consumer claims them while their batch is in flight. JUSTID leaves
// the delivery counter unchanged.
func (c *Client) Touch(ctx context.Context, stream string, ids []string) error {
	for chunk := range slices.Chunk(ids, touchChunk) {
		err := c.rdb.XClaimJustID(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  0,
			Messages: chunk,
		}).Err()
		if err != nil {
			return fmt.Errorf("xclaim justid failed: %w", err)
		}
	}
	return nil
}

// splitExhausted separates pending entries that may be claimed again from
// those delivered more than maxDeliveries times. maxDeliveries 0 disables
// the limit.
func splitExhausted(pending []redis.XPendingExt, maxDeliveries int64) (claim, exhausted []string) {
	for _, p := range pending {
		if maxDeliveries > 0 && p.RetryCount > maxDeliveries {
			exhausted = append(exhausted, p.ID)
			continue
		}
		claim = append(claim, p.ID)
	}
	return claim, exhausted
}

// RefreshStreams rediscovers streams in multi-stream mode and joins the
// group on new ones. It returns the number of new streams.
func (c *Client) RefreshStreams(ctx context.Context) (int, error) {
	if !c.multiStreamMode {
		return 0, nil
	}

	discovered, err := c.DiscoverStreams(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to discover streams: %w", err)
	}

	existing := c.Streams()
	var added []string
	for _, stream := range discovered {
		if !slices.Contains(existing, stream) {
			added = append(added, stream)
		}
	}

	if len(added) > 0 {
		c.log.Info("Discovered %d new streams: %v", len(added), added)
		if err := c.ensureGroups(ctx, added); err != nil {
			return 0, fmt.Errorf("failed to create groups for new streams: %w", err)
		}
	}
	if len(discovered) < len(existing) {
		c.log.Info("Stream count decreased from %d to %d", len(existing), len(discovered))
	}

	c.mu.Lock()
	c.streams = discovered
	c.mu.Unlock()

	return len(added), nil
}

// AckAndDelete acknowledges and deletes ids from stream in one round trip
func (c *Client) AckAndDelete(ctx context.Context, stream string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, stream, c.group, ids...)
		pipe.XDel(ctx, stream, ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("xack/xdel failed for %d entries in stream %s: %w", len(ids), stream, err)
	}
	return nil
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

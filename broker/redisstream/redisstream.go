// Package redisstream provides a Redis Streams broker driver.
//
// Streams are Redis stream keys, consumer groups are Redis consumer groups
// created from the stream beginning. Redis does not redeliver pending
// entries on its own, so the driver exposes reclaim on top of XAUTOCLAIM
// for the consumer's periodic recovery pass.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drblury/eventwire/broker"
	"github.com/drblury/eventwire/internal/core/logging"
)

// DriverName is the name used to register this driver.
const DriverName = "redisstream"

func init() {
	broker.RegisterWithCapabilities(DriverName, Build, broker.RedisStreamCapabilities)
}

// Build creates a new Redis Streams broker from the shared config.
func Build(ctx context.Context, cfg broker.Config, logger logging.ServiceLogger) (broker.Broker, error) {
	return NewFromURL(ctx, cfg.GetRedisURL(), logger)
}

// Capabilities returns the capabilities of this driver.
func Capabilities() broker.Capabilities {
	return broker.RedisStreamCapabilities
}

// Broker implements the broker contract on Redis Streams.
type Broker struct {
	client *redis.Client
	logger logging.ServiceLogger
}

var _ broker.Broker = (*Broker)(nil)
var _ broker.Reclaimer = (*Broker)(nil)
var _ broker.CapabilitiesProvider = (*Broker)(nil)

// New wraps an existing Redis client. The broker takes ownership and closes
// the client on Close.
func New(client *redis.Client, logger logging.ServiceLogger) *Broker {
	return &Broker{client: client, logger: logger}
}

// NewFromURL connects to Redis using a redis:// or rediss:// URL and
// verifies the connection with a ping.
func NewFromURL(ctx context.Context, url string, logger logging.ServiceLogger) (*Broker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return New(client, logger), nil
}

// Capabilities implements broker.CapabilitiesProvider.
func (b *Broker) Capabilities() broker.Capabilities {
	return broker.RedisStreamCapabilities
}

// Append implements broker.Broker via XADD. A positive maxLen trims with
// MAXLEN ~, leaving the exact cut point to Redis.
func (b *Broker) Append(ctx context.Context, stream string, fields map[string]any, maxLen int64) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}

	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd to %q: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup implements broker.Broker via XGROUP CREATE MKSTREAM from id
// 0, so a fresh group sees every entry already in the stream. BUSYGROUP
// means the group exists and is not an error.
func (b *Broker) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create group %q on %q: %w", group, stream, err)
	}
	return nil
}

// ReadNew implements broker.Broker via XREADGROUP with the ">" cursor. A
// non-positive block reads without blocking; an empty read yields an empty
// batch, not an error.
func (b *Broker) ReadNew(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]broker.Delivery, error) {
	if len(streams) == 0 {
		return nil, nil
	}

	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  withNewCursor(streams),
		Count:    count,
		Block:    block,
	}
	if block <= 0 {
		args.Block = -1
	}

	res, err := b.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("xreadgroup %q: %w", group, err)
	}

	var out []broker.Delivery
	for _, xs := range res {
		for _, msg := range xs.Messages {
			out = append(out, broker.Delivery{
				Stream:     xs.Stream,
				ID:         msg.ID,
				Fields:     msg.Values,
				Deliveries: 1,
			})
		}
	}
	return out, nil
}

// Ack implements broker.Broker via XACK. Acking an unknown id is a no-op
// for Redis and therefore for us.
func (b *Broker) Ack(ctx context.Context, stream, group, id string) error {
	if err := b.client.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("xack %q on %q: %w", id, stream, err)
	}
	return nil
}

// Reclaim implements broker.Reclaimer via XAUTOCLAIM from the start of the
// pending list. Delivery counts come from XPENDING so redispatch can see
// how often an entry has bounced.
func (b *Broker) Reclaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]broker.Delivery, error) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xautoclaim %q on %q: %w", group, stream, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	counts := b.deliveryCounts(ctx, stream, group, msgs)

	out := make([]broker.Delivery, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, broker.Delivery{
			Stream:     stream,
			ID:         msg.ID,
			Fields:     msg.Values,
			Deliveries: counts[msg.ID],
		})
	}
	return out, nil
}

func (b *Broker) deliveryCounts(ctx context.Context, stream, group string, msgs []redis.XMessage) map[string]int64 {
	counts := make(map[string]int64, len(msgs))

	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  msgs[0].ID,
		End:    msgs[len(msgs)-1].ID,
		Count:  int64(len(msgs)),
	}).Result()
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("could not read delivery counts", logging.LogFields{
				"stream": stream,
				"group":  group,
				"error":  err.Error(),
			})
		}
		return counts
	}

	for _, p := range pending {
		counts[p.ID] = p.RetryCount
	}
	return counts
}

// Close implements broker.Broker.
func (b *Broker) Close() error {
	return b.client.Close()
}

func withNewCursor(streams []string) []string {
	out := make([]string, 0, len(streams)*2)
	out = append(out, streams...)
	for range streams {
		out = append(out, ">")
	}
	return out
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// Package jetstream provides a NATS JetStream broker driver.
//
// Logical streams map to one JetStream stream each, consumer groups map to
// durable pull consumers. JetStream redelivers unacknowledged messages on
// its own after AckWait, so this driver reports native redelivery and no
// reclaim support.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/drblury/eventwire/broker"
	"github.com/drblury/eventwire/internal/core/jsoncodec"
	"github.com/drblury/eventwire/internal/core/logging"
)

// DriverName is the name used to register this driver.
const DriverName = "nats-jetstream"

const (
	// DefaultMaxDeliver is the default max delivery attempts per message.
	DefaultMaxDeliver = 3

	// DefaultAckWait is how long JetStream waits for an ack before it
	// redelivers a message.
	DefaultAckWait = 30 * time.Second
)

func init() {
	broker.RegisterWithCapabilities(DriverName, Build, broker.JetStreamCapabilities)
}

// Build creates a new JetStream broker from the shared config.
func Build(ctx context.Context, cfg broker.Config, logger logging.ServiceLogger) (broker.Broker, error) {
	return New(ctx, Config{URL: cfg.GetNATSURL()}, logger)
}

// Capabilities returns the capabilities of this driver.
func Capabilities() broker.Capabilities {
	return broker.JetStreamCapabilities
}

// Config holds JetStream-specific configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// MaxDeliver is the maximum number of delivery attempts.
	MaxDeliver int

	// AckWait is the duration to wait for acknowledgment before redelivery.
	AckWait time.Duration

	// Replicas is the number of stream replicas (for clustering).
	Replicas int
}

func (c Config) withDefaults() Config {
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// Broker implements the broker contract on NATS JetStream.
type Broker struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger logging.ServiceLogger

	mu       sync.Mutex
	ensured  map[string]bool
	subs     map[string]*nats.Subscription
	inflight map[string]*nats.Msg

	closed   bool
	closedMu sync.RWMutex
}

var _ broker.Broker = (*Broker)(nil)
var _ broker.CapabilitiesProvider = (*Broker)(nil)

// New connects to NATS and creates a JetStream broker.
func New(ctx context.Context, cfg Config, logger logging.ServiceLogger) (*Broker, error) {
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &Broker{
		nc:       nc,
		js:       js,
		config:   cfg,
		logger:   logger,
		ensured:  make(map[string]bool),
		subs:     make(map[string]*nats.Subscription),
		inflight: make(map[string]*nats.Msg),
	}, nil
}

// Capabilities implements broker.CapabilitiesProvider.
func (b *Broker) Capabilities() broker.Capabilities {
	return broker.JetStreamCapabilities
}

func (b *Broker) isClosed() bool {
	b.closedMu.RLock()
	defer b.closedMu.RUnlock()
	return b.closed
}

// ensureStream creates the JetStream stream backing a logical stream. The
// first caller fixes the retention limit; later maxLen values update it via
// the UpdateStream fallback when they conflict.
func (b *Broker) ensureStream(stream string, maxLen int64) error {
	b.mu.Lock()
	if b.ensured[stream] {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	streamCfg := &nats.StreamConfig{
		Name:      StreamName(stream),
		Subjects:  []string{Subject(stream)},
		Retention: nats.LimitsPolicy,
		Discard:   nats.DiscardOld,
		Replicas:  b.config.Replicas,
	}
	if maxLen > 0 {
		streamCfg.MaxMsgs = maxLen
	}

	if _, err := b.js.AddStream(streamCfg); err != nil {
		if _, uerr := b.js.UpdateStream(streamCfg); uerr != nil {
			return fmt.Errorf("ensure stream %q: %w", stream, err)
		}
	}

	if b.logger != nil {
		b.logger.Debug("ensured jetstream stream", logging.LogFields{
			"stream":  stream,
			"name":    StreamName(stream),
			"subject": Subject(stream),
		})
	}

	b.mu.Lock()
	b.ensured[stream] = true
	b.mu.Unlock()
	return nil
}

// Append implements broker.Broker. The entry id is the JetStream stream
// sequence of the published message.
func (b *Broker) Append(ctx context.Context, stream string, fields map[string]any, maxLen int64) (string, error) {
	if b.isClosed() {
		return "", nats.ErrConnectionClosed
	}

	if err := b.ensureStream(stream, maxLen); err != nil {
		return "", err
	}

	data, err := jsoncodec.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}

	ack, err := b.js.PublishMsg(&nats.Msg{
		Subject: Subject(stream),
		Data:    data,
	}, nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("publish to %q: %w", stream, err)
	}

	return strconv.FormatUint(ack.Sequence, 10), nil
}

// EnsureGroup implements broker.Broker. Groups are durable pull consumers
// created with DeliverAll, so a new group starts at the stream beginning.
// Re-ensuring an existing group is a no-op.
func (b *Broker) EnsureGroup(ctx context.Context, stream, group string) error {
	if b.isClosed() {
		return nats.ErrConnectionClosed
	}

	if err := b.ensureStream(stream, 0); err != nil {
		return err
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:       Durable(group),
		FilterSubject: Subject(stream),
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		MaxDeliver:    b.config.MaxDeliver,
		AckWait:       b.config.AckWait,
	}

	if _, err := b.js.AddConsumer(StreamName(stream), consumerCfg); err != nil {
		if _, uerr := b.js.UpdateConsumer(StreamName(stream), consumerCfg); uerr != nil {
			return fmt.Errorf("ensure group %q on %q: %w", group, stream, err)
		}
	}

	return nil
}

func (b *Broker) subscription(stream, group string) (*nats.Subscription, error) {
	key := stream + "|" + group

	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[key]; ok {
		return sub, nil
	}

	sub, err := b.js.PullSubscribe(Subject(stream), Durable(group))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %q: %w", stream, err)
	}
	b.subs[key] = sub
	return sub, nil
}

// ReadNew implements broker.Broker. The block budget is split across the
// requested streams; an exhausted budget yields an empty batch, not an
// error. Fetched messages stay inflight until Ack.
func (b *Broker) ReadNew(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]broker.Delivery, error) {
	if b.isClosed() {
		return nil, nats.ErrConnectionClosed
	}
	if len(streams) == 0 {
		return nil, nil
	}

	per := block
	if len(streams) > 1 {
		per = block / time.Duration(len(streams))
	}
	if per <= 0 {
		per = 50 * time.Millisecond
	}

	var out []broker.Delivery
	for _, stream := range streams {
		remaining := count - int64(len(out))
		if remaining <= 0 {
			break
		}

		sub, err := b.subscription(stream, group)
		if err != nil {
			return nil, err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, per)
		msgs, err := sub.Fetch(int(remaining), nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("fetch from %q: %w", stream, err)
		}

		for _, msg := range msgs {
			d, err := b.toDelivery(stream, group, msg)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}

	return out, nil
}

func (b *Broker) toDelivery(stream, group string, msg *nats.Msg) (broker.Delivery, error) {
	meta, err := msg.Metadata()
	if err != nil {
		return broker.Delivery{}, fmt.Errorf("message metadata: %w", err)
	}

	var fields map[string]any
	if err := jsoncodec.Unmarshal(msg.Data, &fields); err != nil {
		return broker.Delivery{}, fmt.Errorf("decode fields: %w", err)
	}

	id := strconv.FormatUint(meta.Sequence.Stream, 10)

	b.mu.Lock()
	b.inflight[stream+"|"+group+"|"+id] = msg
	b.mu.Unlock()

	return broker.Delivery{
		Stream:     stream,
		ID:         id,
		Fields:     fields,
		Deliveries: int64(meta.NumDelivered),
	}, nil
}

// Ack implements broker.Broker. Acking an id that is not inflight is a
// no-op; JetStream will simply redeliver the message after AckWait if it was
// never acked.
func (b *Broker) Ack(ctx context.Context, stream, group, id string) error {
	if b.isClosed() {
		return nats.ErrConnectionClosed
	}

	key := stream + "|" + group + "|" + id

	b.mu.Lock()
	msg, ok := b.inflight[key]
	if ok {
		delete(b.inflight, key)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}
	return msg.Ack()
}

// Close implements broker.Broker. Closing twice is fine.
func (b *Broker) Close() error {
	b.closedMu.Lock()
	if b.closed {
		b.closedMu.Unlock()
		return nil
	}
	b.closed = true
	b.closedMu.Unlock()

	b.mu.Lock()
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.subs = make(map[string]*nats.Subscription)
	b.inflight = make(map[string]*nats.Msg)
	b.mu.Unlock()

	b.nc.Close()
	return nil
}

// StreamName maps a logical stream to a JetStream stream name. JetStream
// stream names cannot contain dots, wildcards or whitespace, so everything
// outside [A-Za-z0-9_-] becomes an underscore.
func StreamName(stream string) string {
	return strings.ToUpper(sanitize(stream, '_'))
}

// Subject maps a logical stream to the subject its entries are published
// on. Colons become dots so "events:orders" publishes on "events.orders".
func Subject(stream string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == ':':
			return '.'
		case r == '.' || r == '-' || r == '_':
			return r
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, stream)
}

// Durable maps a consumer group to a durable consumer name.
func Durable(group string) string {
	return sanitize(group, '_')
}

func sanitize(s string, repl rune) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return repl
		}
	}, s)
}

package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/eventwire/broker"
	"github.com/drblury/eventwire/internal/core/config"
	"github.com/drblury/eventwire/internal/core/envelope"
	errspkg "github.com/drblury/eventwire/internal/core/errors"
	"github.com/drblury/eventwire/internal/core/ids"
	"github.com/drblury/eventwire/internal/core/logging"
	"github.com/drblury/eventwire/internal/core/metrics"
	"github.com/drblury/eventwire/internal/core/topology"
	"github.com/drblury/eventwire/internal/core/tracing"
)

// Consumer states. Stopped is terminal; a stopped consumer cannot be
// restarted, construct a new one.
const (
	StateIdle       = "idle"
	StateSubscribed = "subscribed"
	StateRunning    = "running"
	StateStopped    = "stopped"
)

// ConsumerDependencies holds the optional collaborators of a Consumer.
// Leave fields nil to get the defaults.
type ConsumerDependencies struct {
	// Broker to read from. Built from the config via the driver registry
	// when nil; a broker built that way is owned and closed by the
	// Consumer on Stop.
	Broker broker.Broker

	// Bridge for span creation and trace propagation. Defaults to a bridge
	// over the global OpenTelemetry providers.
	Bridge *tracing.Bridge

	// Metrics collector. When nil and the config enables metrics, a
	// collector on the default Prometheus registerer is created.
	Metrics *metrics.Metrics

	// Hooks observe every dispatched delivery.
	Hooks DeliveryHooks
}

type subscription struct {
	route   topology.Route
	handler HandlerFunc
}

// Consumer reads its group's share of stream entries and dispatches them to
// the handlers registered per event type. One consumer runs one sequential
// poll loop; run more instances under the same service name to scale out.
type Consumer struct {
	conf         config.Config
	broker       broker.Broker
	ownsBroker   bool
	logger       logging.ServiceLogger
	service      string
	group        string
	consumerName string
	routes       *topology.Resolver
	bridge       *tracing.Bridge
	metrics      *metrics.Metrics
	hooks        DeliveryHooks
	system       string
	reclaim      bool

	mu       sync.RWMutex
	state    string
	handlers map[string]subscription
	streams  []string

	loopCancel context.CancelFunc
	done       chan struct{}
}

// NewConsumer validates the configuration and builds an idle consumer for
// the given service. The service name doubles as the consumer group, so
// every instance of a service shares one group.
func NewConsumer(ctx context.Context, conf *config.Config, log logging.ServiceLogger, service string, deps ConsumerDependencies) (*Consumer, error) {
	if err := config.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if strings.TrimSpace(service) == "" {
		return nil, errspkg.ErrServiceNameRequired
	}

	cfg := conf.WithDefaults()

	b := deps.Broker
	ownsBroker := false
	if b == nil {
		built, err := broker.Build(ctx, &cfg, log)
		if err != nil {
			return nil, err
		}
		b = built
		ownsBroker = true
	}

	bridge := deps.Bridge
	if bridge == nil {
		bridge = tracing.New()
	}

	m := deps.Metrics
	if m == nil && cfg.MetricsEnabled {
		m = metrics.New(nil)
		if err := m.Register(); err != nil {
			return nil, err
		}
	}

	routes := topology.NewResolver(cfg.StreamPrefix)
	service = strings.TrimSpace(service)

	return &Consumer{
		conf:         cfg,
		broker:       b,
		ownsBroker:   ownsBroker,
		logger:       log,
		service:      service,
		group:        routes.GroupFor(service),
		consumerName: ids.NewConsumerName(service),
		routes:       routes,
		bridge:       bridge,
		metrics:      m,
		hooks:        deps.Hooks,
		system:       brokerSystem(b),
		reclaim:      !cfg.DisableReclaim && needsReclaim(b),
		state:        StateIdle,
		handlers:     make(map[string]subscription),
	}, nil
}

// State reports the lifecycle state of the consumer.
func (c *Consumer) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Group returns the consumer group this instance reads as.
func (c *Consumer) Group() string {
	return c.group
}

// ConsumerName returns the unique name of this instance within its group.
func (c *Consumer) ConsumerName() string {
	return c.consumerName
}

// Subscribe registers handler for eventType and ensures the consumer group
// exists on the type's stream, starting from the stream beginning so the
// group sees history. The first subscription starts the poll loop.
// Subscribing an already-registered event type replaces its handler.
func (c *Consumer) Subscribe(ctx context.Context, eventType string, handler HandlerFunc) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}

	route, err := c.routes.Resolve(eventType)
	if err != nil {
		return err
	}

	if c.State() == StateStopped {
		return errspkg.ErrConsumerStopped
	}

	if err := c.broker.EnsureGroup(ctx, route.Stream, c.group); err != nil {
		return &errspkg.GroupCreateError{Stream: route.Stream, Group: c.group, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return errspkg.ErrConsumerStopped
	}

	if _, replaced := c.handlers[eventType]; replaced {
		c.logger.Warn("replacing event handler", logging.LogFields{
			"event_type": eventType,
			"stream":     route.Stream,
		})
	}
	c.handlers[eventType] = subscription{route: route, handler: handler}
	c.rebuildStreamsLocked()

	c.logger.Info("subscribed to event type", logging.LogFields{
		"event_type": eventType,
		"stream":     route.Stream,
		"group":      c.group,
	})

	if c.state == StateIdle {
		c.state = StateSubscribed
		c.startLocked()
	}
	return nil
}

func (c *Consumer) rebuildStreamsLocked() {
	seen := make(map[string]bool, len(c.handlers))
	streams := make([]string, 0, len(c.handlers))
	for _, sub := range c.handlers {
		if !seen[sub.route.Stream] {
			seen[sub.route.Stream] = true
			streams = append(streams, sub.route.Stream)
		}
	}
	sort.Strings(streams)
	c.streams = streams
}

func (c *Consumer) startLocked() {
	loopCtx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	c.done = make(chan struct{})
	c.state = StateRunning
	go c.pollLoop(loopCtx)
}

// Stop cancels the poll loop, waits for the in-flight delivery to finish,
// and closes the broker if the consumer built it. Stop is idempotent and
// terminal.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	cancel := c.loopCancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.logger.Info("consumer stopped", logging.LogFields{"group": c.group})

	if c.ownsBroker {
		return c.broker.Close()
	}
	return nil
}

func (c *Consumer) subscribedStreams() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streams
}

func (c *Consumer) handlerFor(eventType string) (subscription, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.handlers[eventType]
	return sub, ok
}

// pollLoop is the single sequential loop of this instance. It blocks on the
// group read up to ReadBlock, dispatches the batch one delivery at a time,
// and keeps going through transport errors with a fixed backoff. Loop exit
// happens only through context cancellation.
func (c *Consumer) pollLoop(ctx context.Context) {
	defer close(c.done)

	nextReclaim := time.Now().Add(c.conf.ReclaimInterval)

	for {
		if ctx.Err() != nil {
			return
		}

		streams := c.subscribedStreams()

		deliveries, err := c.broker.ReadNew(ctx, c.group, c.consumerName, streams, c.conf.ReadBatchSize, c.conf.ReadBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to read from broker", err, logging.LogFields{
				"group":   c.group,
				"streams": strings.Join(streams, ","),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.conf.ErrorBackoff):
			}
			continue
		}

		for _, d := range deliveries {
			if ctx.Err() != nil {
				return
			}
			c.processDelivery(ctx, d)
		}

		if c.reclaim && time.Now().After(nextReclaim) {
			c.reclaimPass(ctx, streams)
			nextReclaim = time.Now().Add(c.conf.ReclaimInterval)
		}
	}
}

// processDelivery decodes, dispatches, and acknowledges one delivery.
// Undecodable entries are acknowledged immediately so they cannot block the
// group; handler failures leave the entry pending.
func (c *Consumer) processDelivery(ctx context.Context, d broker.Delivery) {
	e, err := envelope.FromFields(d.Fields)
	if err != nil {
		c.logger.Warn("dropping malformed event", logging.LogFields{
			"stream":      d.Stream,
			"delivery_id": d.ID,
			"error":       err.Error(),
		})
		if c.metrics != nil {
			c.metrics.RecordConsumed(d.Stream, c.group, metrics.OutcomeMalformed, 0)
		}
		c.ack(ctx, d)
		return
	}

	sub, ok := c.handlerFor(e.EventType)
	if !ok {
		c.logger.Debug("no handler for event type", logging.LogFields{
			"event_type":  e.EventType,
			"stream":      d.Stream,
			"delivery_id": d.ID,
		})
		if c.metrics != nil {
			c.metrics.RecordConsumed(d.Stream, c.group, metrics.OutcomeUnhandled, 0)
		}
		c.ack(ctx, d)
		return
	}

	dctx := DeliveryContext{
		Stream:     d.Stream,
		Group:      c.group,
		EventType:  e.EventType,
		EventID:    e.EventID,
		DeliveryID: d.ID,
		Deliveries: d.Deliveries,
		StartedAt:  time.Now(),
	}
	if c.hooks.OnDeliveryStart != nil {
		c.hooks.OnDeliveryStart(dctx)
	}

	parent := c.bridge.Extract(ctx, e.TraceContext)

	err = c.bridge.WithSpan(parent, "consume "+e.EventType, trace.SpanKindConsumer, func(ctx context.Context) error {
		if herr := runHandler(ctx, sub.handler, e); herr != nil {
			return &errspkg.HandlerError{EventType: e.EventType, EventID: e.EventID, Err: herr}
		}
		return nil
	},
		tracing.AttrSystem.String(c.system),
		tracing.AttrOperation.String("process"),
		tracing.AttrStream.String(d.Stream),
		tracing.AttrGroup.String(c.group),
		tracing.AttrEventType.String(e.EventType),
		tracing.AttrEventID.String(e.EventID),
		tracing.AttrEventSource.String(e.Source),
	)

	dctx.Duration = time.Since(dctx.StartedAt)

	if err != nil {
		c.logger.Error("event handler failed", err, logging.LogFields{
			"event_type":  e.EventType,
			"event_id":    e.EventID,
			"stream":      d.Stream,
			"delivery_id": d.ID,
			"deliveries":  d.Deliveries,
		})
		if c.metrics != nil {
			c.metrics.RecordConsumed(d.Stream, c.group, metrics.OutcomeHandler, dctx.Duration)
		}
		if c.hooks.OnDeliveryError != nil {
			c.hooks.OnDeliveryError(dctx, err)
		}
		return
	}

	if c.metrics != nil {
		c.metrics.RecordConsumed(d.Stream, c.group, metrics.OutcomeOK, dctx.Duration)
	}
	if c.hooks.OnDeliveryDone != nil {
		c.hooks.OnDeliveryDone(dctx)
	}
	c.ack(ctx, d)
}

// runHandler converts handler panics into errors so one delivery cannot
// take down the loop.
func runHandler(ctx context.Context, handler HandlerFunc, e *envelope.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, e)
}

// reclaimPass takes over entries other group members left pending past
// ReclaimMinIdle and feeds them through the normal dispatch path. Brokers
// with native redelivery never get here.
func (c *Consumer) reclaimPass(ctx context.Context, streams []string) {
	rec, ok := c.broker.(broker.Reclaimer)
	if !ok {
		return
	}

	for _, stream := range streams {
		deliveries, err := rec.Reclaim(ctx, stream, c.group, c.consumerName, c.conf.ReclaimMinIdle, c.conf.ReadBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("reclaim pass failed", logging.LogFields{
				"stream": stream,
				"group":  c.group,
				"error":  err.Error(),
			})
			continue
		}
		if len(deliveries) == 0 {
			continue
		}

		c.logger.Info("reclaimed pending deliveries", logging.LogFields{
			"stream": stream,
			"group":  c.group,
			"count":  len(deliveries),
		})
		if c.metrics != nil {
			c.metrics.RecordReclaimed(stream, c.group, len(deliveries))
		}

		for _, d := range deliveries {
			if ctx.Err() != nil {
				return
			}
			c.processDelivery(ctx, d)
		}
	}
}

func (c *Consumer) ack(ctx context.Context, d broker.Delivery) {
	if err := c.broker.Ack(ctx, d.Stream, c.group, d.ID); err != nil {
		c.logger.Error("failed to acknowledge delivery", err, logging.LogFields{
			"stream":      d.Stream,
			"group":       c.group,
			"delivery_id": d.ID,
		})
	}
}

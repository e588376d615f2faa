package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/eventwire/broker"
	"github.com/drblury/eventwire/internal/core/config"
	"github.com/drblury/eventwire/internal/core/envelope"
	errspkg "github.com/drblury/eventwire/internal/core/errors"
	"github.com/drblury/eventwire/internal/core/handlers"
	"github.com/drblury/eventwire/internal/core/logging"
	"github.com/drblury/eventwire/internal/core/metadata"
	"github.com/drblury/eventwire/internal/core/metrics"
	"github.com/drblury/eventwire/internal/core/topology"
	"github.com/drblury/eventwire/internal/core/tracing"
)

// PublishOption customises a single publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	correlationID string
	causationID   string
	metadata      metadata.Metadata
}

// WithCorrelationID stamps the envelope with a correlation id linking it to
// a business transaction.
func WithCorrelationID(id string) PublishOption {
	return func(o *publishOptions) { o.correlationID = id }
}

// WithCausationID stamps the envelope with the id of the event that caused
// this one.
func WithCausationID(id string) PublishOption {
	return func(o *publishOptions) { o.causationID = id }
}

// WithMetadata merges extra metadata into the envelope. Later options win
// on key conflicts.
func WithMetadata(md metadata.Metadata) PublishOption {
	return func(o *publishOptions) { o.metadata = o.metadata.WithAll(md) }
}

func resolvePublishOptions(opts []PublishOption) publishOptions {
	var options publishOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// PublisherDependencies holds the optional collaborators of a Publisher.
// Leave fields nil to get the defaults.
type PublisherDependencies struct {
	// Broker to append to. Built from the config via the driver registry
	// when nil; a broker built that way is owned and closed by the
	// Publisher.
	Broker broker.Broker

	// Bridge for span creation and trace propagation. Defaults to a bridge
	// over the global OpenTelemetry providers.
	Bridge *tracing.Bridge

	// Metrics collector. When nil and the config enables metrics, a
	// collector on the default Prometheus registerer is created.
	Metrics *metrics.Metrics

	// Outbox records every successfully published event.
	Outbox OutboxStore
}

// Publisher appends events to the streams their types map to.
type Publisher struct {
	conf       config.Config
	broker     broker.Broker
	ownsBroker bool
	logger     logging.ServiceLogger
	source     string
	routes     *topology.Resolver
	bridge     *tracing.Bridge
	metrics    *metrics.Metrics
	outbox     OutboxStore
	system     string
}

// NewPublisher validates the configuration and builds a publisher that
// stamps envelopes with source as their origin service.
func NewPublisher(ctx context.Context, conf *config.Config, log logging.ServiceLogger, source string, deps PublisherDependencies) (*Publisher, error) {
	if err := config.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	source = strings.TrimSpace(source)
	if source == "" {
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

	return &Publisher{
		conf:       cfg,
		broker:     b,
		ownsBroker: ownsBroker,
		logger:     log,
		source:     source,
		routes:     topology.NewResolver(cfg.StreamPrefix),
		bridge:     bridge,
		metrics:    m,
		outbox:     deps.Outbox,
		system:     brokerSystem(b),
	}, nil
}

// Publish appends one event and returns the broker-assigned delivery id.
// The append is synchronous; when Publish returns without error the entry
// is in the stream. Broker errors surface unretried.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any, opts ...PublishOption) (string, error) {
	route, err := p.routes.Resolve(eventType)
	if err != nil {
		return "", err
	}

	e, err := envelope.New(eventType, p.source, payload)
	if err != nil {
		return "", &errspkg.PublishError{EventType: eventType, Stream: route.Stream, Err: err}
	}

	options := resolvePublishOptions(opts)
	e.CorrelationID = options.correlationID
	e.CausationID = options.causationID
	if len(options.metadata) > 0 {
		e.Metadata = e.Metadata.WithAll(options.metadata)
	}

	var deliveryID string
	err = p.bridge.WithSpan(ctx, "publish "+eventType, trace.SpanKindProducer, func(ctx context.Context) error {
		e.TraceContext = p.bridge.Inject(ctx, e.TraceContext)

		fields, err := envelope.ToFields(e)
		if err != nil {
			return &errspkg.PublishError{EventType: eventType, Stream: route.Stream, Err: err}
		}

		start := time.Now()
		id, err := p.broker.Append(ctx, route.Stream, fields, p.conf.MaxStreamLength)
		if err != nil {
			if p.metrics != nil {
				p.metrics.RecordPublishFailure(route.Stream, eventType)
			}
			return &errspkg.PublishError{EventType: eventType, Stream: route.Stream, Err: err}
		}

		deliveryID = id
		if p.metrics != nil {
			p.metrics.RecordPublished(route.Stream, eventType, time.Since(start))
		}
		return nil
	},
		tracing.AttrSystem.String(p.system),
		tracing.AttrOperation.String("publish"),
		tracing.AttrStream.String(route.Stream),
		tracing.AttrEventType.String(eventType),
		tracing.AttrEventID.String(e.EventID),
		tracing.AttrEventSource.String(p.source),
	)
	if err != nil {
		p.logger.Error("failed to publish event", err, logging.LogFields{
			"event_type": eventType,
			"event_id":   e.EventID,
			"stream":     route.Stream,
		})
		return "", err
	}

	p.storeOutgoing(ctx, e)

	p.logger.Debug("published event", logging.LogFields{
		"event_type":  eventType,
		"event_id":    e.EventID,
		"stream":      route.Stream,
		"delivery_id": deliveryID,
	})
	return deliveryID, nil
}

// PublishProto marshals a protobuf payload with protojson and publishes it.
// Consumers decode it with the Proto handler adapter.
func (p *Publisher) PublishProto(ctx context.Context, eventType string, event proto.Message, opts ...PublishOption) (string, error) {
	raw, err := handlers.MarshalProto(event)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, eventType, json.RawMessage(raw), opts...)
}

// Source returns the service name stamped on published envelopes.
func (p *Publisher) Source() string {
	return p.source
}

// Close releases the broker if the publisher built it. A broker supplied by
// the caller stays open.
func (p *Publisher) Close() error {
	if p.ownsBroker {
		return p.broker.Close()
	}
	return nil
}

func (p *Publisher) storeOutgoing(ctx context.Context, e *envelope.Envelope) {
	if p.outbox == nil {
		return
	}

	encoded, err := envelope.Encode(e)
	if err == nil {
		err = p.outbox.StoreOutgoingMessage(ctx, e.EventType, e.EventID, string(encoded))
	}
	if err != nil {
		p.logger.Warn("failed to record outgoing event", logging.LogFields{
			"event_type": e.EventType,
			"event_id":   e.EventID,
			"error":      err.Error(),
		})
	}
}

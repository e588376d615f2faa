// Package eventwire is a small event-messaging layer over consumer-grouped
// streams. It wraps domain events in a versioned JSON envelope, derives the
// stream for each event from its type ("order.created" travels on the orders
// stream), and gives every service a stable consumer group so any number of
// instances share one cursor. A minimal setup fills Config, creates a
// Publisher or Consumer for a service name, and subscribes typed handlers;
// see the examples directory for runnable quick start programs.
//
// # Brokers
//
// Three broker drivers ship with the module, selected by Config.Broker:
//   - redisstream: Redis Streams with consumer groups (XADD/XREADGROUP/XACK)
//   - nats-jetstream: NATS JetStream with durable pull consumers
//   - channel: in-process hub for tests and local development
//
// Import a driver to register it:
//
//	import _ "github.com/drblury/eventwire/broker/redisstream"
//
// Custom drivers register through RegisterBroker and are picked up by name.
// Stores without native redelivery get a periodic reclaim pass that recovers
// deliveries abandoned by dead consumers; stores with an ack deadline
// (JetStream) skip the pass because the server redelivers on its own.
//
// # Envelopes
//
// Every event travels as an Envelope: ULID event id, "domain.action" type,
// UTC timestamp, producing service, optional correlation/causation ids, W3C
// trace headers, open metadata, and the JSON payload. The decoder accepts
// both the canonical camelCase dialect and the snake_case dialect produced
// by services in other languages, preserving unknown fields in metadata.
// Malformed entries are logged, acknowledged, and skipped so they can never
// wedge a group.
//
// # Handlers
//
// Subscribe registers one handler per event type; JSONHandler and
// ProtoHandler wrap typed callbacks so application code never touches raw
// envelopes. A handler error leaves the delivery unacknowledged for
// redelivery; a panic is contained and treated the same way.
//
// # Observability
//
// Publishing opens a producer span and injects the trace context into the
// envelope; consuming extracts it and opens a consumer span as a child, so
// traces cross service boundaries. Prometheus counters and latency
// histograms are collected per stream and group. DeliveryHooks expose
// start/done/error callbacks for custom logging, metrics, and alerting
// around handler execution.
//
// # CloudEvents
//
// The cloudevents subpackage converts envelopes to and from CloudEvents, so
// streams can feed CloudEvents-aware systems and accept their events.
package eventwire

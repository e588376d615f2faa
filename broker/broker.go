// Package broker defines the narrow contract the messaging layer needs from
// a stream store: append with bounded retention, consumer groups, blocking
// grouped reads and per-entry acknowledgment. Each driver (redisstream,
// jetstream, channel) lives in its own sub-package and registers itself with
// the broker registry.
package broker

import (
	"context"
	"time"

	"github.com/drblury/eventwire/internal/core/logging"
)

// Broker is the five-operation contract every driver implements. Any
// log-structured store with competing-consumer groups can back it.
type Broker interface {
	// Append adds a field set to the end of a stream and returns the entry
	// id assigned by the broker. When maxLen is positive the stream is
	// trimmed to approximately that many entries; the trim may lag, it never
	// blocks the append.
	Append(ctx context.Context, stream string, fields map[string]any, maxLen int64) (string, error)

	// EnsureGroup creates the consumer group on the stream, reading from the
	// very beginning, creating the stream if needed. Calling it for a group
	// that already exists is not an error and changes nothing.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadNew blocks up to block waiting for entries not yet delivered to
	// the group, across all given streams, and returns at most count of
	// them. An elapsed block with nothing to deliver returns an empty result
	// and no error. Cancelling ctx interrupts the wait with ctx.Err().
	ReadNew(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]Delivery, error)

	// Ack acknowledges one delivered entry for the group. Acked entries
	// leave the group's pending list and are never redelivered.
	Ack(ctx context.Context, stream, group, id string) error

	// Close releases the underlying connection. The broker is unusable
	// afterwards.
	Close() error
}

// Delivery is one entry handed to a consumer.
type Delivery struct {
	// Stream the entry was read from.
	Stream string

	// ID is the broker-assigned entry id, used to acknowledge it.
	ID string

	// Fields is the raw field set appended by the producer.
	Fields map[string]any

	// Deliveries counts how many times the broker has handed this entry
	// out, when the broker tracks that; 0 means unknown.
	Deliveries int64
}

// Reclaimer is implemented by drivers that can hand over pending entries
// abandoned by dead or stuck consumers.
type Reclaimer interface {
	// Reclaim transfers up to count entries of the group's pending list that
	// have been idle at least minIdle to the given consumer and returns them
	// for redispatch.
	Reclaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Delivery, error)
}

// CapabilitiesProvider is implemented by drivers that can report their
// capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// Builder is the function signature for creating a broker from config.
// Each driver package provides a Builder and registers it.
type Builder func(ctx context.Context, cfg Config, logger logging.ServiceLogger) (Broker, error)

// Config provides the configuration values needed by drivers. The interface
// keeps drivers independent of the full config package.
type Config interface {
	// GetBroker returns the driver name.
	GetBroker() string

	// Redis
	GetRedisURL() string

	// NATS
	GetNATSURL() string
}

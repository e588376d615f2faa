// Package core wires envelopes, topology, tracing, and a broker into the
// publisher and consumer. The root package re-exports the public surface.
package core

import (
	"context"

	"github.com/drblury/eventwire/broker"
	"github.com/drblury/eventwire/internal/core/envelope"
)

// HandlerFunc processes one decoded event. A nil return acknowledges the
// delivery; an error leaves it pending for the reclaim pass.
type HandlerFunc func(ctx context.Context, e *envelope.Envelope) error

// OutboxStore persists published events so a relay can forward or audit
// them. Store failures never fail the publish.
type OutboxStore interface {
	StoreOutgoingMessage(ctx context.Context, eventType, eventID, payload string) error
}

// brokerSystem names the messaging system for span attributes.
func brokerSystem(b broker.Broker) string {
	if cp, ok := b.(broker.CapabilitiesProvider); ok {
		if name := cp.Capabilities().Name; name != "" {
			return name
		}
	}
	return "stream"
}

// needsReclaim reports whether the consumer should run the periodic
// recovery pass for this broker.
func needsReclaim(b broker.Broker) bool {
	if cp, ok := b.(broker.CapabilitiesProvider); ok {
		return cp.Capabilities().NeedsReclaimPass()
	}
	_, ok := b.(broker.Reclaimer)
	return ok
}

// Package topology maps event types onto physical stream and group names.
// Every name decision of the messaging layer lives here so producers and
// consumers can never drift apart.
package topology

import (
	"strings"

	ewerrors "github.com/drblury/eventwire/internal/core/errors"
)

// Route is the resolved physical location for one event type.
type Route struct {
	EventType string
	Domain    string
	Action    string
	Stream    string
}

// Resolver derives stream names from event types. It holds no connection
// state and is safe for concurrent use.
type Resolver struct {
	prefix string
}

// NewResolver returns a Resolver that prefixes every stream name with the
// given deployment prefix, e.g. "events" yields "events:orders".
func NewResolver(prefix string) *Resolver {
	return &Resolver{prefix: strings.TrimSpace(prefix)}
}

// Resolve splits an event type of the form "domain.action" and returns the
// route for it. The domain is everything up to the first dot; the stream is
// the pluralized domain under the deployment prefix. Event types without a
// non-empty domain and action are rejected with ErrInvalidEventType.
func (r *Resolver) Resolve(eventType string) (Route, error) {
	domain, action, ok := strings.Cut(eventType, ".")
	if !ok || domain == "" || action == "" {
		return Route{}, ewerrors.ErrInvalidEventType
	}

	return Route{
		EventType: eventType,
		Domain:    domain,
		Action:    action,
		Stream:    r.StreamFor(domain),
	}, nil
}

// StreamFor returns the stream name for a domain. One domain, one stream,
// shared by every action under it.
func (r *Resolver) StreamFor(domain string) string {
	var sb strings.Builder
	sb.Grow(len(r.prefix) + len(domain) + 2)
	if r.prefix != "" {
		sb.WriteString(r.prefix)
		sb.WriteByte(':')
	}
	sb.WriteString(domain)
	sb.WriteByte('s')
	return sb.String()
}

// GroupFor returns the consumer group name for a service. The name is the
// trimmed service name itself: stable across restarts and identical on every
// stream, so one grouped read can span all subscribed streams.
func (r *Resolver) GroupFor(service string) string {
	return strings.TrimSpace(service)
}

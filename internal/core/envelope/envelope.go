// Package envelope defines the canonical event envelope and its wire codec.
// Every event crossing a stream is wrapped in one envelope; services written
// in other languages produce the same shape with snake_case field names, so
// the decoder accepts both dialects and normalizes here, at the boundary.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/drblury/eventwire/internal/core/ids"
	"github.com/drblury/eventwire/internal/core/jsoncodec"
	"github.com/drblury/eventwire/internal/core/metadata"
)

// Version is the envelope schema version stamped on every published event.
const Version = "1.0"

// Envelope wraps a domain event payload with the delivery attributes shared
// by all services. Treat an envelope as immutable once created; use Clone
// before mutating a received one.
type Envelope struct {
	// EventID uniquely identifies the event across the whole system.
	// Generated at publish time, never reused.
	EventID string

	// EventType names the event as "domain.action", e.g. "order.created".
	// The domain segment decides which stream carries the event.
	EventType string

	// Timestamp is the UTC creation time stamped by the publisher.
	Timestamp time.Time

	// Source is the name of the producing service.
	Source string

	// Version is the envelope schema version, currently "1.0".
	Version string

	// CorrelationID groups events belonging to one logical flow. Optional.
	CorrelationID string

	// CausationID is the EventID of the event that caused this one. Optional.
	CausationID string

	// TraceContext carries the W3C trace headers injected at publish time.
	TraceContext metadata.Metadata

	// Metadata is an open map for anything else. Unknown fields found while
	// decoding foreign envelopes are preserved here.
	Metadata metadata.Metadata

	// Data is the opaque event payload. It is carried verbatim and never
	// validated by the messaging layer.
	Data json.RawMessage
}

// New builds an envelope for a payload, stamping a fresh event id, the
// current UTC time and the schema version. The payload is marshalled once
// and carried as raw JSON from here on.
func New(eventType, source string, data any) (*Envelope, error) {
	raw, err := jsoncodec.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:   ids.NewEventID(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Version:   Version,
		Data:      raw,
	}, nil
}

// Clone returns a deep copy of the envelope.
func (e *Envelope) Clone() *Envelope {
	cloned := *e
	cloned.TraceContext = e.TraceContext.Clone()
	cloned.Metadata = e.Metadata.Clone()
	if e.Data != nil {
		cloned.Data = make(json.RawMessage, len(e.Data))
		copy(cloned.Data, e.Data)
	}
	return &cloned
}

// DecodeData unmarshals the payload into v.
func (e *Envelope) DecodeData(v any) error {
	return jsoncodec.Unmarshal(e.Data, v)
}

type envelopeJSON struct {
	EventID       string            `json:"eventId"`
	EventType     string            `json:"eventType"`
	Timestamp     string            `json:"timestamp,omitempty"`
	Source        string            `json:"source,omitempty"`
	Version       string            `json:"version,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	TraceContext  map[string]string `json:"traceContext,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Data          json.RawMessage   `json:"data,omitempty"`
}

// MarshalJSON writes the canonical camelCase encoding. Timestamps are
// RFC 3339 in UTC.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	out := envelopeJSON{
		EventID:       e.EventID,
		EventType:     e.EventType,
		Source:        e.Source,
		Version:       e.Version,
		CorrelationID: e.CorrelationID,
		CausationID:   e.CausationID,
		TraceContext:  e.TraceContext,
		Metadata:      e.Metadata,
		Data:          e.Data,
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return jsoncodec.Marshal(out)
}

// Encode serializes the envelope to its canonical JSON form.
func Encode(e *Envelope) ([]byte, error) {
	return e.MarshalJSON()
}

package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	ewerrors "github.com/drblury/eventwire/internal/core/errors"
	"github.com/drblury/eventwire/internal/core/jsoncodec"
	"github.com/drblury/eventwire/internal/core/metadata"
)

// knownKeys lists every envelope field in both dialects. Anything else found
// at the top level of an incoming envelope is preserved into Metadata.
var knownKeys = map[string]bool{
	"eventId": true, "event_id": true,
	"eventType": true, "event_type": true,
	"timestamp": true,
	"source":    true,
	"version":   true,
	"correlationId": true, "correlation_id": true,
	"causationId": true, "causation_id": true,
	"traceContext": true, "trace_context": true,
	"metadata": true,
	"data":     true,
}

// Decode parses an envelope from its JSON encoding. Both the camelCase and
// the snake_case dialect are accepted, field by field; the camelCase spelling
// wins when a document carries both. The result is always normalized, so no
// caller downstream ever sees dialect differences.
//
// A document that is not a JSON object, or that carries neither an event id
// nor an event type in either spelling, fails with ErrMalformedEnvelope.
func Decode(data []byte) (*Envelope, error) {
	var m map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ewerrors.ErrMalformedEnvelope, err)
	}

	e := &Envelope{
		EventID:       stringField(m, "eventId", "event_id"),
		EventType:     stringField(m, "eventType", "event_type"),
		Source:        stringField(m, "source"),
		Version:       stringField(m, "version"),
		CorrelationID: stringField(m, "correlationId", "correlation_id"),
		CausationID:   stringField(m, "causationId", "causation_id"),
	}

	if e.EventID == "" && e.EventType == "" {
		return nil, fmt.Errorf("%w: no event id or event type", ewerrors.ErrMalformedEnvelope)
	}

	if ts := stringField(m, "timestamp"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			t, err = time.Parse(time.RFC3339, ts)
		}
		if err == nil {
			e.Timestamp = t.UTC()
		}
	}

	if raw, ok := firstRaw(m, "traceContext", "trace_context"); ok {
		e.TraceContext = stringMapField(raw)
	}
	if raw, ok := m["metadata"]; ok {
		e.Metadata = stringMapField(raw)
	}
	if raw, ok := m["data"]; ok {
		e.Data = append(json.RawMessage(nil), raw...)
	}

	for key, raw := range m {
		if knownKeys[key] {
			continue
		}
		if e.Metadata == nil {
			e.Metadata = metadata.Metadata{}
		}
		e.Metadata[key] = rawString(raw)
	}

	return e, nil
}

// UnmarshalJSON makes the dialect-tolerant decoder the default for any JSON
// path that touches an envelope.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}

func firstRaw(m map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if raw, ok := m[key]; ok {
			return raw, true
		}
	}
	return nil, false
}

// stringField reads the first present spelling of a field as a string.
// Values of any other JSON type are ignored rather than failing the decode;
// only the identity fields decide malformedness, and they do so by absence.
func stringField(m map[string]json.RawMessage, keys ...string) string {
	raw, ok := firstRaw(m, keys...)
	if !ok {
		return ""
	}
	var s string
	if err := jsoncodec.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func stringMapField(raw json.RawMessage) metadata.Metadata {
	var m map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(raw, &m); err != nil {
		return nil
	}
	out := make(metadata.Metadata, len(m))
	for k, v := range m {
		out[k] = rawString(v)
	}
	return out
}

// rawString renders a JSON value as a string for metadata preservation.
// JSON strings lose their quotes; every other value keeps its JSON text.
func rawString(raw json.RawMessage) string {
	var s string
	if err := jsoncodec.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

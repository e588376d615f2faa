// Package cloudevents converts event envelopes to and from CloudEvents so
// streams can interoperate with CloudEvents-aware systems. The conversion
// keeps the envelope identity, tracing headers, and open metadata; metadata
// keys are folded to the restricted CloudEvents attribute alphabet.
package cloudevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	ce "github.com/cloudevents/sdk-go/v2"
	cetypes "github.com/cloudevents/sdk-go/v2/types"

	"github.com/drblury/eventwire/internal/core/envelope"
	ewerrors "github.com/drblury/eventwire/internal/core/errors"
)

// Extension attribute names used on the CloudEvents side.
const (
	ExtCorrelationID   = "correlationid"
	ExtCausationID     = "causationid"
	ExtTraceParent     = "traceparent"
	ExtTraceState      = "tracestate"
	ExtEnvelopeVersion = "envelopeversion"
)

// DefaultSource is used when an envelope carries no producing service name;
// the CloudEvents source attribute must not be empty.
const DefaultSource = "unknown"

// ToEvent converts an envelope into a CloudEvent. The payload travels as
// JSON data; correlation, causation, and trace headers become extension
// attributes.
func ToEvent(e *envelope.Envelope) (ce.Event, error) {
	if e == nil {
		return ce.Event{}, fmt.Errorf("%w: nil envelope", ewerrors.ErrMalformedEnvelope)
	}
	if e.EventID == "" || e.EventType == "" {
		return ce.Event{}, fmt.Errorf("%w: envelope is missing its identity", ewerrors.ErrMalformedEnvelope)
	}

	evt := ce.NewEvent()
	evt.SetID(e.EventID)
	evt.SetType(e.EventType)
	if e.Source != "" {
		evt.SetSource(e.Source)
	} else {
		evt.SetSource(DefaultSource)
	}
	if !e.Timestamp.IsZero() {
		evt.SetTime(e.Timestamp.UTC())
	}
	if len(e.Data) > 0 {
		if err := evt.SetData(ce.ApplicationJSON, []byte(e.Data)); err != nil {
			return ce.Event{}, fmt.Errorf("eventwire: set cloudevent data: %w", err)
		}
	}

	setExtension(&evt, ExtEnvelopeVersion, e.Version)
	setExtension(&evt, ExtCorrelationID, e.CorrelationID)
	setExtension(&evt, ExtCausationID, e.CausationID)
	setExtension(&evt, ExtTraceParent, e.TraceContext[ExtTraceParent])
	setExtension(&evt, ExtTraceState, e.TraceContext[ExtTraceState])

	for key, value := range e.Metadata {
		name := sanitizeExtensionName(key)
		if name == "" || reservedExtension(name) {
			continue
		}
		setExtension(&evt, name, value)
	}

	return evt, nil
}

// FromEvent converts a CloudEvent into an envelope. Events without an id or
// type are malformed; unknown extension attributes land in the envelope
// metadata.
func FromEvent(evt ce.Event) (*envelope.Envelope, error) {
	if evt.ID() == "" || evt.Type() == "" {
		return nil, fmt.Errorf("%w: cloudevent is missing id or type", ewerrors.ErrMalformedEnvelope)
	}
	if ct := evt.DataContentType(); ct != "" && !isJSONContentType(ct) {
		return nil, fmt.Errorf("eventwire: unsupported cloudevent content type %q", ct)
	}

	e := &envelope.Envelope{
		EventID:   evt.ID(),
		EventType: evt.Type(),
		Source:    evt.Source(),
		Version:   envelope.Version,
	}
	if t := evt.Time(); !t.IsZero() {
		e.Timestamp = t.UTC()
	}
	if data := evt.Data(); len(data) > 0 {
		e.Data = json.RawMessage(append([]byte(nil), data...))
	}

	for name, value := range evt.Extensions() {
		str := extensionString(value)
		switch name {
		case ExtEnvelopeVersion:
			if str != "" {
				e.Version = str
			}
		case ExtCorrelationID:
			e.CorrelationID = str
		case ExtCausationID:
			e.CausationID = str
		case ExtTraceParent, ExtTraceState:
			e.TraceContext = e.TraceContext.With(name, str)
		default:
			e.Metadata = e.Metadata.With(name, str)
		}
	}

	return e, nil
}

// Handler adapts a CloudEvents-typed callback to the consumer handler
// signature, converting every delivered envelope on the way in.
func Handler(fn func(ctx context.Context, evt ce.Event) error) func(ctx context.Context, e *envelope.Envelope) error {
	return func(ctx context.Context, e *envelope.Envelope) error {
		evt, err := ToEvent(e)
		if err != nil {
			return err
		}
		return fn(ctx, evt)
	}
}

func setExtension(evt *ce.Event, name, value string) {
	if value == "" {
		return
	}
	// Names built here are always in the valid attribute alphabet.
	evt.SetExtension(name, value)
}

func reservedExtension(name string) bool {
	switch name {
	case ExtCorrelationID, ExtCausationID, ExtTraceParent, ExtTraceState, ExtEnvelopeVersion:
		return true
	}
	return false
}

// sanitizeExtensionName folds a metadata key to the CloudEvents attribute
// alphabet: lower-case ASCII letters and digits.
func sanitizeExtensionName(key string) string {
	var sb strings.Builder
	sb.Grow(len(key))
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct == ce.ApplicationJSON || strings.HasSuffix(ct, "+json")
}

func extensionString(value any) string {
	if s, err := cetypes.ToString(value); err == nil {
		return s
	}
	return fmt.Sprintf("%v", value)
}

package envelope

import (
	"fmt"

	ewerrors "github.com/drblury/eventwire/internal/core/errors"
)

// Broker entry field names. The envelope travels as one JSON document under
// FieldPayload; the id and type are duplicated as plain fields so stream
// entries stay greppable with broker tooling. Read paths trust only the
// payload, never the duplicates.
const (
	FieldPayload   = "payload"
	FieldData      = "data"
	FieldEventID   = "eventId"
	FieldEventType = "eventType"
)

// ToFields encodes the envelope into the field set appended to the broker.
func ToFields(e *Envelope) (map[string]any, error) {
	encoded, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		FieldPayload:   string(encoded),
		FieldEventID:   e.EventID,
		FieldEventType: e.EventType,
	}, nil
}

// FromFields decodes the envelope out of a delivered broker field set. The
// canonical field is "payload"; "data" is accepted from producers that embed
// the envelope under that name. A field set carrying neither is malformed no
// matter what other fields it has.
func FromFields(fields map[string]any) (*Envelope, error) {
	raw, ok := payloadBytes(fields[FieldPayload])
	if !ok {
		raw, ok = payloadBytes(fields[FieldData])
	}
	if !ok {
		return nil, fmt.Errorf("%w: no payload field", ewerrors.ErrMalformedEnvelope)
	}
	return Decode(raw)
}

func payloadBytes(v any) ([]byte, bool) {
	switch p := v.(type) {
	case string:
		if p == "" {
			return nil, false
		}
		return []byte(p), true
	case []byte:
		if len(p) == 0 {
			return nil, false
		}
		return p, true
	default:
		return nil, false
	}
}

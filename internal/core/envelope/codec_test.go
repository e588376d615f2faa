package envelope

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ewerrors "github.com/drblury/eventwire/internal/core/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := &Envelope{
		EventID:       "01JAAAAAAAAAAAAAAAAAAAAAAA",
		EventType:     "order.created",
		Timestamp:     time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC),
		Source:        "checkout",
		Version:       Version,
		CorrelationID: "corr-1",
		CausationID:   "cause-1",
		TraceContext:  map[string]string{"traceparent": "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"},
		Metadata:      map[string]string{"tenant": "acme"},
		Data:          []byte(`{"orderId":"o-1","total":42}`),
	}

	encoded, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.True(t, env.Timestamp.Equal(decoded.Timestamp))
	assert.Equal(t, env.Source, decoded.Source)
	assert.Equal(t, env.Version, decoded.Version)
	assert.Equal(t, env.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, env.CausationID, decoded.CausationID)
	assert.Equal(t, env.TraceContext, decoded.TraceContext)
	assert.Equal(t, env.Metadata, decoded.Metadata)
	assert.JSONEq(t, string(env.Data), string(decoded.Data))
}

func TestDecodeSnakeCaseDialect(t *testing.T) {
	payload := []byte(`{
		"event_id": "evt-77",
		"event_type": "payment.captured",
		"timestamp": "2025-11-03T09:30:00Z",
		"source": "payments-py",
		"version": "1.0",
		"correlation_id": "corr-9",
		"causation_id": "cause-9",
		"trace_context": {"traceparent": "00-aa-bb-01", "tracestate": "vendor=1"},
		"metadata": {"region": "eu"},
		"data": {"amount": 1299}
	}`)

	env, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "evt-77", env.EventID)
	assert.Equal(t, "payment.captured", env.EventType)
	assert.Equal(t, time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC), env.Timestamp)
	assert.Equal(t, "payments-py", env.Source)
	assert.Equal(t, "1.0", env.Version)
	assert.Equal(t, "corr-9", env.CorrelationID)
	assert.Equal(t, "cause-9", env.CausationID)
	assert.Equal(t, "00-aa-bb-01", env.TraceContext["traceparent"])
	assert.Equal(t, "vendor=1", env.TraceContext["tracestate"])
	assert.Equal(t, "eu", env.Metadata["region"])
	assert.JSONEq(t, `{"amount":1299}`, string(env.Data))
}

func TestDecodeCamelCaseWinsOverSnakeCase(t *testing.T) {
	payload := []byte(`{"eventId":"camel","event_id":"snake","eventType":"order.created"}`)

	env, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "camel", env.EventID)
}

func TestDecodePreservesUnknownFields(t *testing.T) {
	payload := []byte(`{
		"eventId": "evt-1",
		"eventType": "order.created",
		"schemaUrl": "https://example.com/order",
		"retryCount": 3,
		"flags": {"beta": true}
	}`)

	env, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/order", env.Metadata["schemaUrl"])
	assert.Equal(t, "3", env.Metadata["retryCount"])
	assert.JSONEq(t, `{"beta":true}`, env.Metadata["flags"])
}

func TestDecodeUnknownFieldsMergeIntoExistingMetadata(t *testing.T) {
	payload := []byte(`{
		"eventId": "evt-1",
		"eventType": "order.created",
		"metadata": {"tenant": "acme"},
		"extra": "kept"
	}`)

	env, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "acme", env.Metadata["tenant"])
	assert.Equal(t, "kept", env.Metadata["extra"])
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"eventId": `},
		{"json but not object", `[1,2,3]`},
		{"missing id and type", `{"source":"checkout","data":{"k":"v"}}`},
		{"id and type wrong type", `{"eventId":42,"eventType":{"no":"pe"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, ewerrors.ErrMalformedEnvelope)
		})
	}
}

func TestDecodeAcceptsSingleIdentityField(t *testing.T) {
	env, err := Decode([]byte(`{"eventType":"order.created"}`))
	require.NoError(t, err)
	assert.Equal(t, "order.created", env.EventType)
	assert.Empty(t, env.EventID)

	env, err = Decode([]byte(`{"event_id":"evt-2"}`))
	require.NoError(t, err)
	assert.Equal(t, "evt-2", env.EventID)
}

func TestDecodeToleratesBadOptionalFields(t *testing.T) {
	payload := []byte(`{
		"eventId": "evt-1",
		"eventType": "order.created",
		"timestamp": "not-a-time",
		"traceContext": "not-a-map",
		"source": 42
	}`)

	env, err := Decode(payload)
	require.NoError(t, err)
	assert.True(t, env.Timestamp.IsZero())
	assert.Nil(t, env.TraceContext)
	assert.Empty(t, env.Source)
}

func TestUnmarshalJSONUsesDialectDecoder(t *testing.T) {
	var env Envelope
	require.NoError(t, env.UnmarshalJSON([]byte(`{"event_id":"evt-5","event_type":"order.created"}`)))
	assert.Equal(t, "evt-5", env.EventID)

	err := env.UnmarshalJSON([]byte(`{}`))
	assert.True(t, errors.Is(err, ewerrors.ErrMalformedEnvelope))
}

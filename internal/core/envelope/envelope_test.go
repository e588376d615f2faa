package envelope

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	env, err := New("order.created", "checkout", map[string]string{"orderId": "o-1"})
	require.NoError(t, err)

	assert.Equal(t, "order.created", env.EventType)
	assert.Equal(t, "checkout", env.Source)
	assert.Equal(t, Version, env.Version)
	assert.False(t, env.Timestamp.IsZero())
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(env.Data))

	_, err = ulid.Parse(env.EventID)
	assert.NoError(t, err, "event id should be a ULID")
}

func TestNewGeneratesUniqueIDs(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		env, err := New("order.created", "checkout", nil)
		require.NoError(t, err)
		_, dup := seen[env.EventID]
		require.False(t, dup, "duplicate event id %s", env.EventID)
		seen[env.EventID] = struct{}{}
	}
}

func TestNewRejectsUnmarshalablePayload(t *testing.T) {
	_, err := New("order.created", "checkout", make(chan int))
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	env, err := New("order.created", "checkout", map[string]string{"k": "v"})
	require.NoError(t, err)
	env.Metadata = map[string]string{"tenant": "acme"}
	env.TraceContext = map[string]string{"traceparent": "00-aa-bb-01"}

	cloned := env.Clone()
	cloned.Metadata["tenant"] = "other"
	cloned.TraceContext["traceparent"] = "changed"
	cloned.Data[2] = 'X'

	assert.Equal(t, "acme", env.Metadata["tenant"])
	assert.Equal(t, "00-aa-bb-01", env.TraceContext["traceparent"])
	assert.JSONEq(t, `{"k":"v"}`, string(env.Data))
}

func TestDecodeData(t *testing.T) {
	type order struct {
		OrderID string `json:"orderId"`
	}
	env, err := New("order.created", "checkout", order{OrderID: "o-9"})
	require.NoError(t, err)

	var out order
	require.NoError(t, env.DecodeData(&out))
	assert.Equal(t, "o-9", out.OrderID)
}

package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/eventwire/internal/core/logging"
)

func TestMergeChainsHooksInOrder(t *testing.T) {
	var order []string

	first := DeliveryHooks{
		OnDeliveryStart: func(DeliveryContext) { order = append(order, "start-1") },
		OnDeliveryDone:  func(DeliveryContext) { order = append(order, "done-1") },
		OnDeliveryError: func(DeliveryContext, error) { order = append(order, "error-1") },
	}
	second := DeliveryHooks{
		OnDeliveryStart: func(DeliveryContext) { order = append(order, "start-2") },
		OnDeliveryDone:  func(DeliveryContext) { order = append(order, "done-2") },
		OnDeliveryError: func(DeliveryContext, error) { order = append(order, "error-2") },
	}

	merged := Merge(first, second)
	dctx := DeliveryContext{Stream: "app:orders", Group: "billing"}

	merged.OnDeliveryStart(dctx)
	merged.OnDeliveryDone(dctx)
	merged.OnDeliveryError(dctx, errors.New("boom"))

	assert.Equal(t, []string{
		"start-1", "start-2",
		"done-1", "done-2",
		"error-1", "error-2",
	}, order)
}

func TestMergeSkipsNilCallbacks(t *testing.T) {
	var calls int
	partial := DeliveryHooks{
		OnDeliveryDone: func(DeliveryContext) { calls++ },
	}

	merged := Merge(DeliveryHooks{}, partial, DeliveryHooks{})
	require.NotNil(t, merged.OnDeliveryDone)

	merged.OnDeliveryDone(DeliveryContext{})
	assert.Equal(t, 1, calls)

	if merged.OnDeliveryStart != nil {
		merged.OnDeliveryStart(DeliveryContext{})
	}
	if merged.OnDeliveryError != nil {
		merged.OnDeliveryError(DeliveryContext{}, errors.New("boom"))
	}
	assert.Equal(t, 1, calls)
}

func TestMergeOfNothingIsEmpty(t *testing.T) {
	merged := Merge()
	assert.Nil(t, merged.OnDeliveryStart)
	assert.Nil(t, merged.OnDeliveryDone)
	assert.Nil(t, merged.OnDeliveryError)
}

func TestLoggingHooksCoverAllOutcomes(t *testing.T) {
	hooks := LoggingHooks(logging.NewNopLogger())
	require.NotNil(t, hooks.OnDeliveryStart)
	require.NotNil(t, hooks.OnDeliveryDone)
	require.NotNil(t, hooks.OnDeliveryError)

	dctx := DeliveryContext{
		Stream:     "app:orders",
		Group:      "billing",
		EventType:  "order.created",
		EventID:    "01HXYZ",
		DeliveryID: "1-0",
		Deliveries: 1,
		StartedAt:  time.Now(),
		Duration:   time.Millisecond,
	}
	hooks.OnDeliveryStart(dctx)
	hooks.OnDeliveryDone(dctx)
	hooks.OnDeliveryError(dctx, errors.New("boom"))
}

package core

import (
	"time"

	"github.com/drblury/eventwire/internal/core/logging"
)

// DeliveryContext describes one delivery as it moves through dispatch.
type DeliveryContext struct {
	// Stream the entry was read from.
	Stream string
	// Group is the consumer group processing the entry.
	Group string
	// EventType and EventID identify the decoded event.
	EventType string
	EventID   string
	// DeliveryID is the broker-assigned entry id.
	DeliveryID string
	// Deliveries counts how often the broker has handed this entry out,
	// when known.
	Deliveries int64
	// StartedAt is when dispatch began.
	StartedAt time.Time
	// Duration is how long the handler ran (only set in OnDeliveryDone and
	// OnDeliveryError).
	Duration time.Duration
}

// DeliveryHooks defines callbacks around handler execution.
// All hooks are optional - nil hooks are simply not called.
type DeliveryHooks struct {
	// OnDeliveryStart is called before the handler runs.
	OnDeliveryStart func(ctx DeliveryContext)

	// OnDeliveryDone is called after the handler returned nil and the
	// delivery was acknowledged.
	OnDeliveryDone func(ctx DeliveryContext)

	// OnDeliveryError is called when the handler failed. The delivery stays
	// pending.
	OnDeliveryError func(ctx DeliveryContext, err error)
}

// Merge combines two DeliveryHooks, creating a new DeliveryHooks that calls
// both. The hooks from other run after the hooks from h.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnDeliveryStart: chainStartHooks(h.OnDeliveryStart, other.OnDeliveryStart),
		OnDeliveryDone:  chainDoneHooks(h.OnDeliveryDone, other.OnDeliveryDone),
		OnDeliveryError: chainErrorHooks(h.OnDeliveryError, other.OnDeliveryError),
	}
}

// Merge combines any number of DeliveryHooks into one set. Callbacks run in
// the order their hooks were given.
func Merge(hooks ...DeliveryHooks) DeliveryHooks {
	var merged DeliveryHooks
	for _, h := range hooks {
		merged = merged.Merge(h)
	}
	return merged
}

func chainStartHooks(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainDoneHooks(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DeliveryContext, error)) func(DeliveryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// LoggingHooks returns pre-built hooks that log the delivery lifecycle.
func LoggingHooks(logger logging.ServiceLogger) DeliveryHooks {
	return DeliveryHooks{
		OnDeliveryStart: func(ctx DeliveryContext) {
			logger.Debug("delivery started", logging.LogFields{
				"event_type":  ctx.EventType,
				"event_id":    ctx.EventID,
				"stream":      ctx.Stream,
				"delivery_id": ctx.DeliveryID,
				"deliveries":  ctx.Deliveries,
			})
		},
		OnDeliveryDone: func(ctx DeliveryContext) {
			logger.Debug("delivery completed", logging.LogFields{
				"event_type":  ctx.EventType,
				"event_id":    ctx.EventID,
				"stream":      ctx.Stream,
				"delivery_id": ctx.DeliveryID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnDeliveryError: func(ctx DeliveryContext, err error) {
			logger.Error("delivery failed", err, logging.LogFields{
				"event_type":  ctx.EventType,
				"event_id":    ctx.EventID,
				"stream":      ctx.Stream,
				"delivery_id": ctx.DeliveryID,
				"duration_ms": ctx.Duration.Milliseconds(),
				"deliveries":  ctx.Deliveries,
			})
		},
	}
}

// Package handlers adapts typed payload handlers to the envelope handler
// the consumer dispatches to. JSON payloads decode through the shared codec,
// protobuf payloads through protojson.
package handlers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/drblury/eventwire/internal/core/envelope"
	errspkg "github.com/drblury/eventwire/internal/core/errors"
	"github.com/drblury/eventwire/internal/core/jsoncodec"
	"github.com/drblury/eventwire/internal/core/logging"
	"github.com/drblury/eventwire/internal/core/metadata"
)

// EventContext exposes the typed payload together with the envelope it
// arrived in.
type EventContext[T any] struct {
	Payload  T
	Envelope *envelope.Envelope
	Logger   logging.ServiceLogger
}

// Metadata returns the envelope metadata, never nil.
func (c EventContext[T]) Metadata() metadata.Metadata {
	if c.Envelope == nil || c.Envelope.Metadata == nil {
		return metadata.Metadata{}
	}
	return c.Envelope.Metadata
}

// CloneMetadata copies the envelope metadata so handlers can mutate it
// safely.
func (c EventContext[T]) CloneMetadata() metadata.Metadata {
	return c.Metadata().Clone()
}

// JSONEventHandler processes a JSON payload decoded into T.
type JSONEventHandler[T any] func(ctx context.Context, event EventContext[T]) error

// JSON converts a typed JSON handler into an envelope handler. T must be a
// pointer type; each delivery decodes into a fresh instance.
func JSON[T any](handler JSONEventHandler[T], logger logging.ServiceLogger) (func(context.Context, *envelope.Envelope) error, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	factory, err := jsonPrototypeFactory[T]()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, e *envelope.Envelope) error {
		typed := factory()

		if err := jsoncodec.Unmarshal(e.Data, typed); err != nil {
			return fmt.Errorf("unmarshal %T payload: %w", typed, err)
		}

		return handler(ctx, EventContext[T]{
			Payload:  typed,
			Envelope: e,
			Logger:   logger,
		})
	}, nil
}

func jsonPrototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, errspkg.ErrPayloadTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrPayloadPointerNeeded
	}
	elem := typ.Elem()
	return func() T {
		clone := reflect.New(elem).Interface()
		return clone.(T)
	}, nil
}

package handlers

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/eventwire/internal/core/envelope"
	errspkg "github.com/drblury/eventwire/internal/core/errors"
	"github.com/drblury/eventwire/internal/core/logging"
)

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

// ProtoEventHandler processes a protobuf payload decoded into T.
type ProtoEventHandler[T proto.Message] func(ctx context.Context, event EventContext[T]) error

// Proto converts a typed protobuf handler into an envelope handler. The
// prototype provides the concrete message type; payloads are expected in
// protojson form, which is what the publisher writes for proto payloads.
func Proto[T proto.Message](prototype T, handler ProtoEventHandler[T], logger logging.ServiceLogger) (func(context.Context, *envelope.Envelope) error, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	prototype, err := EnsurePrototype(prototype)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, e *envelope.Envelope) error {
		typed, err := clonePrototype(prototype)
		if err != nil {
			return err
		}

		if err := protojson.Unmarshal(e.Data, typed); err != nil {
			return fmt.Errorf("unmarshal %T payload: %w", prototype, err)
		}

		return handler(ctx, EventContext[T]{
			Payload:  typed,
			Envelope: e,
			Logger:   logger,
		})
	}, nil
}

// MarshalProto encodes a protobuf message the way Proto handlers expect to
// decode it.
func MarshalProto(msg proto.Message) ([]byte, error) {
	if msg == nil {
		return nil, errspkg.ErrPayloadTypeRequired
	}
	return protoJSONMarshalOptions.Marshal(msg)
}

// EnsurePrototype returns a usable prototype instance, constructing one via
// reflection when the caller passed a typed nil.
func EnsurePrototype[T proto.Message](candidate T) (T, error) {
	if !isNilProto(candidate) {
		return candidate, nil
	}

	var zero T
	typ := reflect.TypeOf(candidate)
	if typ == nil {
		return zero, errspkg.ErrPayloadTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return zero, errspkg.ErrPayloadPointerNeeded
	}

	inst := reflect.New(typ.Elem()).Interface()
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return typed, nil
}

func clonePrototype[T proto.Message](prototype T) (T, error) {
	if isNilProto(prototype) {
		var zero T
		return zero, errspkg.ErrPayloadTypeRequired
	}

	cloned := proto.Clone(prototype)
	proto.Reset(cloned)

	typed, ok := cloned.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected prototype type %T", cloned)
	}

	return typed, nil
}

func isNilProto[T proto.Message](prototype T) bool {
	msg := proto.Message(prototype)
	if msg == nil {
		return true
	}

	val := reflect.ValueOf(msg)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

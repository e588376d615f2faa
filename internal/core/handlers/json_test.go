package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/drblury/eventwire/internal/core/envelope"
	errspkg "github.com/drblury/eventwire/internal/core/errors"
	"github.com/drblury/eventwire/internal/core/logging"
)

type orderPayload struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

func TestJSONDecodesPayload(t *testing.T) {
	var got *orderPayload
	handler, err := JSON(func(ctx context.Context, evt EventContext[*orderPayload]) error {
		if ctx == nil {
			t.Fatalf("context should not be nil")
		}
		got = evt.Payload
		if evt.Envelope.EventType != "order.created" {
			t.Fatalf("unexpected event type %q", evt.Envelope.EventType)
		}
		return nil
	}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("unexpected error building handler: %v", err)
	}

	e, err := envelope.New("order.created", "order-service", orderPayload{OrderID: "o-1", Amount: 12.5})
	if err != nil {
		t.Fatalf("failed to build envelope: %v", err)
	}

	if err := handler(context.Background(), e); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got == nil || got.OrderID != "o-1" || got.Amount != 12.5 {
		t.Fatalf("payload not decoded: %+v", got)
	}
}

func TestJSONFreshInstancePerDelivery(t *testing.T) {
	seen := make([]*orderPayload, 0, 2)
	handler, err := JSON(func(ctx context.Context, evt EventContext[*orderPayload]) error {
		seen = append(seen, evt.Payload)
		return nil
	}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("unexpected error building handler: %v", err)
	}

	first, _ := envelope.New("order.created", "order-service", orderPayload{OrderID: "o-1"})
	second, _ := envelope.New("order.created", "order-service", orderPayload{OrderID: "o-2"})

	if err := handler(context.Background(), first); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if err := handler(context.Background(), second); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if seen[0] == seen[1] {
		t.Fatalf("deliveries shared a payload instance")
	}
	if seen[0].OrderID != "o-1" || seen[1].OrderID != "o-2" {
		t.Fatalf("payloads mixed up: %+v", seen)
	}
}

func TestJSONUnmarshalError(t *testing.T) {
	handler, err := JSON(func(ctx context.Context, evt EventContext[*orderPayload]) error {
		t.Fatal("handler should not run")
		return nil
	}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("unexpected error building handler: %v", err)
	}

	e := &envelope.Envelope{EventType: "order.created", Data: []byte("{not json")}
	if err := handler(context.Background(), e); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestJSONHandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	handler, err := JSON(func(ctx context.Context, evt EventContext[*orderPayload]) error {
		return boom
	}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("unexpected error building handler: %v", err)
	}

	e, _ := envelope.New("order.created", "order-service", orderPayload{})
	if err := handler(context.Background(), e); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestJSONNilHandler(t *testing.T) {
	_, err := JSON[*orderPayload](nil, logging.NewNopLogger())
	if !errors.Is(err, errspkg.ErrHandlerRequired) {
		t.Fatalf("expected ErrHandlerRequired, got %v", err)
	}
}

func TestJSONRequiresPointerType(t *testing.T) {
	_, err := JSON(func(ctx context.Context, evt EventContext[orderPayload]) error {
		return nil
	}, logging.NewNopLogger())
	if !errors.Is(err, errspkg.ErrPayloadPointerNeeded) {
		t.Fatalf("expected ErrPayloadPointerNeeded, got %v", err)
	}
}

func TestEventContextMetadata(t *testing.T) {
	e, _ := envelope.New("order.created", "order-service", orderPayload{})
	e.Metadata = map[string]string{"tenant": "acme"}

	ctx := EventContext[*orderPayload]{Envelope: e}
	md := ctx.CloneMetadata()
	md["tenant"] = "other"

	if e.Metadata["tenant"] != "acme" {
		t.Fatal("clone mutated the envelope metadata")
	}

	empty := EventContext[*orderPayload]{}
	if empty.Metadata() == nil {
		t.Fatal("metadata of an empty context should not be nil")
	}
}

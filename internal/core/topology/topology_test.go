package topology

import (
	"errors"
	"testing"

	ewerrors "github.com/drblury/eventwire/internal/core/errors"
)

func TestResolve(t *testing.T) {
	r := NewResolver("events")

	tests := []struct {
		name       string
		eventType  string
		wantStream string
		wantDomain string
		wantAction string
		wantErr    bool
	}{
		{"simple", "order.created", "events:orders", "order", "created", false},
		{"nested action", "payment.refund.requested", "events:payments", "payment", "refund.requested", false},
		{"no dot", "order", "", "", "", true},
		{"empty domain", ".created", "", "", "", true},
		{"empty action", "order.", "", "", "", true},
		{"empty", "", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := r.Resolve(tt.eventType)
			if tt.wantErr {
				if !errors.Is(err, ewerrors.ErrInvalidEventType) {
					t.Fatalf("expected ErrInvalidEventType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if route.Stream != tt.wantStream {
				t.Errorf("Stream = %q, want %q", route.Stream, tt.wantStream)
			}
			if route.Domain != tt.wantDomain {
				t.Errorf("Domain = %q, want %q", route.Domain, tt.wantDomain)
			}
			if route.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", route.Action, tt.wantAction)
			}
		})
	}
}

func TestResolveIsPure(t *testing.T) {
	r := NewResolver("events")
	first, err := r.Resolve("order.created")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Resolve("order.created")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("expected identical route on every call, got %#v then %#v", first, again)
		}
	}
}

func TestStreamForWithoutPrefix(t *testing.T) {
	r := NewResolver("")
	if got := r.StreamFor("order"); got != "orders" {
		t.Fatalf("StreamFor = %q, want %q", got, "orders")
	}
}

func TestGroupForIsStable(t *testing.T) {
	r := NewResolver("events")
	if r.GroupFor("billing-service") != r.GroupFor("billing-service") {
		t.Fatal("expected stable group names")
	}
	if got := r.GroupFor("  billing-service "); got != "billing-service" {
		t.Fatalf("GroupFor = %q, want trimmed name", got)
	}
}

package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrInvalidEventType  = sterrors.New("eventwire: event type must have a domain segment like \"order.created\"")
	ErrMalformedEnvelope = sterrors.New("eventwire: malformed event envelope")
	ErrPublishFailed     = sterrors.New("eventwire: publish failed")
	ErrGroupCreateFailed = sterrors.New("eventwire: consumer group creation failed")
	ErrHandlerFailed     = sterrors.New("eventwire: event handler failed")

	ErrBrokerRequired       = sterrors.New("eventwire: broker is required")
	ErrLoggerRequired       = sterrors.New("eventwire: logger is required")
	ErrHandlerRequired      = sterrors.New("eventwire: handler function is required")
	ErrEventTypeRequired    = sterrors.New("eventwire: event type is required")
	ErrServiceNameRequired  = sterrors.New("eventwire: service name is required")
	ErrConfigRequired       = sterrors.New("eventwire: configuration is required")
	ErrConsumerStopped      = sterrors.New("eventwire: consumer is stopped")
	ErrPayloadTypeRequired  = sterrors.New("eventwire: payload type is required")
	ErrPayloadPointerNeeded = sterrors.New("eventwire: payload type must be a pointer")
)

// PublishError reports a failed append for a single event. The broker error
// is preserved unmodified; no retry has been attempted.
type PublishError struct {
	EventType string
	Stream    string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("eventwire: publish %s to %s: %v", e.EventType, e.Stream, e.Err)
}

func (e *PublishError) Unwrap() []error {
	return []error{ErrPublishFailed, e.Err}
}

// GroupCreateError reports a consumer group that could not be ensured on its
// stream. "Already exists" answers from the broker never surface as this.
type GroupCreateError struct {
	Stream string
	Group  string
	Err    error
}

func (e *GroupCreateError) Error() string {
	return fmt.Sprintf("eventwire: create group %s on %s: %v", e.Group, e.Stream, e.Err)
}

func (e *GroupCreateError) Unwrap() []error {
	return []error{ErrGroupCreateFailed, e.Err}
}

// HandlerError wraps a handler failure for a specific delivered event so the
// event identity travels with the error into logs and spans.
type HandlerError struct {
	EventType string
	EventID   string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("eventwire: handle %s (%s): %v", e.EventType, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandlerFailed, e.Err}
}

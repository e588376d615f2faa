package tracing

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the publish and consume paths.
var (
	AttrSystem      = attribute.Key("messaging.system")
	AttrOperation   = attribute.Key("messaging.operation")
	AttrStream      = attribute.Key("messaging.destination.name")
	AttrGroup       = attribute.Key("messaging.consumer.group")
	AttrEventType   = attribute.Key("eventwire.event.type")
	AttrEventID     = attribute.Key("eventwire.event.id")
	AttrEventSource = attribute.Key("eventwire.event.source")
)

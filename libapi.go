package eventwire

import (
	"google.golang.org/protobuf/proto"

	brokerpkg "github.com/drblury/eventwire/broker"
	cebinding "github.com/drblury/eventwire/cloudevents"
	corepkg "github.com/drblury/eventwire/internal/core"
	configpkg "github.com/drblury/eventwire/internal/core/config"
	envelopepkg "github.com/drblury/eventwire/internal/core/envelope"
	errspkg "github.com/drblury/eventwire/internal/core/errors"
	handlerpkg "github.com/drblury/eventwire/internal/core/handlers"
	idspkg "github.com/drblury/eventwire/internal/core/ids"
	jsoncodec "github.com/drblury/eventwire/internal/core/jsoncodec"
	loggingpkg "github.com/drblury/eventwire/internal/core/logging"
	metadatapkg "github.com/drblury/eventwire/internal/core/metadata"
	metricspkg "github.com/drblury/eventwire/internal/core/metrics"
	topologypkg "github.com/drblury/eventwire/internal/core/topology"
	tracingpkg "github.com/drblury/eventwire/internal/core/tracing"
)

type (
	Config = configpkg.Config

	Publisher             = corepkg.Publisher
	PublisherDependencies = corepkg.PublisherDependencies
	Consumer              = corepkg.Consumer
	ConsumerDependencies  = corepkg.ConsumerDependencies
	HandlerFunc           = corepkg.HandlerFunc
	OutboxStore           = corepkg.OutboxStore
	PublishOption         = corepkg.PublishOption

	// Delivery lifecycle hooks
	DeliveryContext = corepkg.DeliveryContext
	DeliveryHooks   = corepkg.DeliveryHooks

	Envelope = envelopepkg.Envelope
	Metadata = metadatapkg.Metadata

	// Topology
	Route    = topologypkg.Route
	Resolver = topologypkg.Resolver

	// Broker driver surface
	Broker         = brokerpkg.Broker
	Reclaimer      = brokerpkg.Reclaimer
	Delivery       = brokerpkg.Delivery
	Capabilities   = brokerpkg.Capabilities
	BrokerConfig   = brokerpkg.Config
	BrokerBuilder  = brokerpkg.Builder
	BrokerRegistry = brokerpkg.Registry

	// Tracing
	Bridge        = tracingpkg.Bridge
	TracingOption = tracingpkg.Option

	// Metrics
	Metrics         = metricspkg.Metrics
	StreamMetrics   = metricspkg.StreamMetrics
	MetricsSnapshot = metricspkg.Snapshot

	// Typed handler contexts
	EventContext[T any]                = handlerpkg.EventContext[T]
	JSONEventHandler[T any]            = handlerpkg.JSONEventHandler[T]
	ProtoEventHandler[T proto.Message] = handlerpkg.ProtoEventHandler[T]

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	// Error types carrying event identity
	PublishError     = errspkg.PublishError
	GroupCreateError = errspkg.GroupCreateError
	HandlerError     = errspkg.HandlerError
)

var (
	NewPublisher   = corepkg.NewPublisher
	NewConsumer    = corepkg.NewConsumer
	ValidateConfig = configpkg.ValidateConfig

	// Publish options
	WithCorrelationID = corepkg.WithCorrelationID
	WithCausationID   = corepkg.WithCausationID
	WithMetadata      = corepkg.WithMetadata

	// Delivery hooks
	MergeHooks   = corepkg.Merge
	LoggingHooks = corepkg.LoggingHooks

	// Envelope codec
	NewEnvelope        = envelopepkg.New
	EncodeEnvelope     = envelopepkg.Encode
	DecodeEnvelope     = envelopepkg.Decode
	EnvelopeToFields   = envelopepkg.ToFields
	EnvelopeFromFields = envelopepkg.FromFields

	// Topology
	NewResolver = topologypkg.NewResolver

	// Tracing bridge
	NewBridge          = tracingpkg.New
	WithTracerProvider = tracingpkg.WithTracerProvider
	WithPropagator     = tracingpkg.WithPropagator
	WithTracerName     = tracingpkg.WithTracerName

	// Metrics
	NewMetrics = metricspkg.New

	// Broker driver registry.
	// Bundled drivers register themselves on import:
	//   _ "github.com/drblury/eventwire/broker/redisstream"
	DefaultBrokerRegistry          = brokerpkg.DefaultRegistry
	RegisterBroker                 = brokerpkg.Register
	RegisterBrokerWithCapabilities = brokerpkg.RegisterWithCapabilities
	BuildBroker                    = brokerpkg.Build
	GetBrokerCapabilities          = brokerpkg.GetCapabilities

	// CloudEvents interop
	ToCloudEvent      = cebinding.ToEvent
	FromCloudEvent    = cebinding.FromEvent
	CloudEventHandler = cebinding.Handler

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrInvalidEventType  = errspkg.ErrInvalidEventType
	ErrMalformedEnvelope = errspkg.ErrMalformedEnvelope
	ErrPublishFailed     = errspkg.ErrPublishFailed
	ErrGroupCreateFailed = errspkg.ErrGroupCreateFailed
	ErrHandlerFailed     = errspkg.ErrHandlerFailed

	ErrBrokerRequired       = errspkg.ErrBrokerRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrEventTypeRequired    = errspkg.ErrEventTypeRequired
	ErrServiceNameRequired  = errspkg.ErrServiceNameRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrConsumerStopped      = errspkg.ErrConsumerStopped
	ErrPayloadTypeRequired  = errspkg.ErrPayloadTypeRequired
	ErrPayloadPointerNeeded = errspkg.ErrPayloadPointerNeeded

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewZapServiceLogger  = loggingpkg.NewZapServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	NewMetadata = metadatapkg.New

	// NewEventID mints a time-sortable ULID.
	NewEventID = idspkg.NewEventID
)

// Consumer lifecycle states as reported by Consumer.State.
const (
	StateIdle       = corepkg.StateIdle
	StateSubscribed = corepkg.StateSubscribed
	StateRunning    = corepkg.StateRunning
	StateStopped    = corepkg.StateStopped
)

// Consumption outcome labels used by the metrics collector.
const (
	OutcomeOK        = metricspkg.OutcomeOK
	OutcomeHandler   = metricspkg.OutcomeHandler
	OutcomeMalformed = metricspkg.OutcomeMalformed
	OutcomeUnhandled = metricspkg.OutcomeUnhandled
)

// JSONHandler builds a HandlerFunc that decodes each event payload into a
// fresh T and passes it to the typed handler.
func JSONHandler[T any](handler JSONEventHandler[T], logger ServiceLogger) (HandlerFunc, error) {
	return handlerpkg.JSON[T](handler, logger)
}

// ProtoHandler builds a HandlerFunc that decodes each event payload into a
// clone of the prototype message and passes it to the typed handler.
func ProtoHandler[T proto.Message](prototype T, handler ProtoEventHandler[T], logger ServiceLogger) (HandlerFunc, error) {
	return handlerpkg.Proto[T](prototype, handler, logger)
}

// MarshalProto encodes a protobuf message to the JSON form used for event
// payloads, including zero-valued fields.
func MarshalProto(msg proto.Message) ([]byte, error) {
	return handlerpkg.MarshalProto(msg)
}

// NewEntryServiceLogger wraps an entry-style logger (for example a
// logrus.Entry) so it can be consumed without additional logging adapters.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

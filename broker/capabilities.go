package broker

// Capabilities describes what a driver's backing store can do. Consumers use
// this to decide, for example, whether they must run their own reclaim pass.
type Capabilities struct {
	// Name is the driver name as registered.
	Name string

	// NativeRedelivery indicates the store re-delivers unacknowledged
	// entries on its own after an ack deadline. When true the consumer's
	// reclaim pass is unnecessary.
	NativeRedelivery bool

	// SupportsReclaim indicates the driver implements the Reclaimer
	// extension.
	SupportsReclaim bool

	// ApproximateTrim indicates Append honors maxLen by trimming roughly,
	// trading exactness for cheap appends.
	ApproximateTrim bool

	// BlockingRead indicates ReadNew blocks store-side instead of polling.
	BlockingRead bool

	// ReportsDeliveryCount indicates Delivery.Deliveries carries a real
	// per-entry delivery counter.
	ReportsDeliveryCount bool
}

// NeedsReclaimPass returns true when unacknowledged entries would otherwise
// sit in the pending list forever.
func (c Capabilities) NeedsReclaimPass() bool {
	return !c.NativeRedelivery && c.SupportsReclaim
}

// Predefined capability sets for the bundled drivers.
var (
	// RedisStreamCapabilities for the Redis Streams driver.
	RedisStreamCapabilities = Capabilities{
		Name:                 "redisstream",
		NativeRedelivery:     false,
		SupportsReclaim:      true,
		ApproximateTrim:      true,
		BlockingRead:         true,
		ReportsDeliveryCount: true,
	}

	// JetStreamCapabilities for the NATS JetStream driver.
	JetStreamCapabilities = Capabilities{
		Name:                 "nats-jetstream",
		NativeRedelivery:     true,
		SupportsReclaim:      false,
		ApproximateTrim:      true,
		BlockingRead:         true,
		ReportsDeliveryCount: true,
	}

	// ChannelCapabilities for the in-process channel driver.
	ChannelCapabilities = Capabilities{
		Name:                 "channel",
		NativeRedelivery:     false,
		SupportsReclaim:      true,
		ApproximateTrim:      true,
		BlockingRead:         true,
		ReportsDeliveryCount: true,
	}
)

// GetCapabilities returns the capabilities for a driver by name, as
// registered in the default registry. Unknown names get a zero value carrying
// just the name.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}

package transport

// Capabilities describes what a broker backend guarantees to the relay.
type Capabilities struct {
	Name string

	// SupportsConsumerGroups means every consumer group receives every
	// message once, independently of other groups.
	SupportsConsumerGroups bool

	// SupportsInitialOffset means a new consumer group can start from the
	// oldest retained message instead of only new ones.
	SupportsInitialOffset bool

	// SupportsOrdering means messages of one topic arrive in publish order.
	SupportsOrdering bool

	// SupportsPartitioning means the partition_key header is honoured.
	SupportsPartitioning bool

	// SupportsAck means delivery is confirmed to the publisher.
	SupportsAck bool

	SupportsTracing bool

	// RequiresProvisioning means topics must be created before consumers
	// subscribe.
	RequiresProvisioning bool

	// MaxMessageSize in bytes, 0 when unknown.
	MaxMessageSize int64
}

// ReplaysHistory reports whether an "earliest" consumer sees messages
// published before it subscribed.
func (c Capabilities) ReplaysHistory() bool {
	return c.SupportsConsumerGroups && c.SupportsInitialOffset
}

var (
	ChannelCapabilities = Capabilities{
		Name:                   "channel",
		SupportsConsumerGroups: true,
		SupportsInitialOffset:  true,
		SupportsOrdering:       true,
		SupportsAck:            true,
	}

	KafkaCapabilities = Capabilities{
		Name:                   "kafka",
		SupportsConsumerGroups: true,
		SupportsInitialOffset:  true,
		SupportsOrdering:       true,
		SupportsPartitioning:   true,
		SupportsAck:            true,
		SupportsTracing:        true,
		RequiresProvisioning:   true,
		MaxMessageSize:         1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:                   "rabbitmq",
		SupportsConsumerGroups: true,
		SupportsOrdering:       true,
		SupportsAck:            true,
		SupportsTracing:        true,
	}

	NATSCapabilities = Capabilities{
		Name:                   "nats",
		SupportsConsumerGroups: true,
		SupportsTracing:        true,
		MaxMessageSize:         1048576,
	}

	AWSCapabilities = Capabilities{
		Name:                   "aws",
		SupportsConsumerGroups: true,
		SupportsAck:            true,
		SupportsTracing:        true,
		MaxMessageSize:         262144,
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}

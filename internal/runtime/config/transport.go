package config

// TransportConfig is the view of BrokerConfig handed to one transport
// instance. Every consumer gets its own, carrying its consumer group and
// initial offset.
type TransportConfig struct {
	Broker        BrokerConfig
	ConsumerGroup string
	InitialOffset string
}

// ForConsumer derives the transport view for a consumer group.
func (c *Config) ForConsumer(group, offset string) *TransportConfig {
	if offset == "" {
		offset = OffsetEarliest
	}
	return &TransportConfig{Broker: c.Broker, ConsumerGroup: group, InitialOffset: offset}
}

// ForProducer derives the transport view used by publishers.
func (c *Config) ForProducer() *TransportConfig {
	return &TransportConfig{Broker: c.Broker, InitialOffset: OffsetLatest}
}

// Getter methods implementing transport.Config.
func (t *TransportConfig) GetPubSubSystem() string       { return t.Broker.PubSubSystem }
func (t *TransportConfig) GetClientID() string           { return t.Broker.ClientID }
func (t *TransportConfig) GetConsumerGroup() string      { return t.ConsumerGroup }
func (t *TransportConfig) GetInitialOffset() string      { return t.InitialOffset }
func (t *TransportConfig) GetKafkaBrokers() []string     { return t.Broker.KafkaBrokers }
func (t *TransportConfig) GetRabbitMQURL() string        { return t.Broker.RabbitMQURL }
func (t *TransportConfig) GetNATSURL() string            { return t.Broker.NATSURL }
func (t *TransportConfig) GetAWSRegion() string          { return t.Broker.AWSRegion }
func (t *TransportConfig) GetAWSAccountID() string       { return t.Broker.AWSAccountID }
func (t *TransportConfig) GetAWSAccessKeyID() string     { return t.Broker.AWSAccessKeyID }
func (t *TransportConfig) GetAWSSecretAccessKey() string { return t.Broker.AWSSecretAccessKey }
func (t *TransportConfig) GetAWSEndpoint() string        { return t.Broker.AWSEndpoint }

// Package kafka provides the Kafka transport. Each consumer group gets its
// own Sarama consumer group client; the publisher keys messages by the
// partition_key header.
package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/eventrelay/internal/runtime/metadata"
	"github.com/drblury/eventrelay/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a Kafka transport. A config with a consumer group gets a
// subscriber only, one without gets a publisher only: the Sarama sync
// producer dials the brokers on creation, which consumers must not do before
// their topics are provisioned.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return transport.Transport{}, errors.New("kafka brokers are required")
	}

	if cfg.GetConsumerGroup() == "" {
		publisher, err := PublisherFactory(
			kafka.PublisherConfig{
				Brokers:               brokers,
				Marshaler:             kafka.NewWithPartitioningMarshaler(metadata.PartitionKey),
				OverwriteSaramaConfig: publisherSaramaConfig(cfg),
			},
			logger,
		)
		if err != nil {
			return transport.Transport{}, err
		}
		logger.Debug("Kafka publisher ready", watermill.LogFields{"brokers": brokers})
		return transport.Transport{Publisher: publisher}, nil
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			ConsumerGroup:         cfg.GetConsumerGroup(),
			OverwriteSaramaConfig: subscriberSaramaConfig(cfg),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	logger.Debug("Kafka subscriber ready", watermill.LogFields{
		"brokers":        brokers,
		"initial_offset": cfg.GetInitialOffset(),
	})
	return transport.Transport{Subscriber: subscriber}, nil
}

func publisherSaramaConfig(cfg transport.Config) *sarama.Config {
	sc := kafka.DefaultSaramaSyncPublisherConfig()
	if id := cfg.GetClientID(); id != "" {
		sc.ClientID = id
	}
	return sc
}

func subscriberSaramaConfig(cfg transport.Config) *sarama.Config {
	sc := kafka.DefaultSaramaSubscriberConfig()
	if id := cfg.GetClientID(); id != "" {
		sc.ClientID = id
	}
	sc.Consumer.Offsets.Initial = InitialOffset(cfg.GetInitialOffset())
	return sc
}

// InitialOffset maps "earliest"/"latest" to Sarama offsets. Anything else
// means earliest.
func InitialOffset(offset string) int64 {
	if offset == "latest" {
		return sarama.OffsetNewest
	}
	return sarama.OffsetOldest
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

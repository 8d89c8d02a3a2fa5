// Package transport is the pluggable broker layer of the relay. Each broker
// lives in its own sub-package and registers a Builder under the name used
// by the broker.pubsub_system setting.
//
// A Transport is built per consumer group: the dispatcher, the metrics
// consumer and the legacy bridge each get their own connection, read
// position and buffers.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the subscriber and then the publisher. A pair backed by the
// same object is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Subscriber != nil {
		if err := t.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Publisher != nil && !samePubSub(t.Publisher, t.Subscriber) {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func samePubSub(pub message.Publisher, sub message.Subscriber) bool {
	if sub == nil {
		return false
	}
	other, ok := sub.(message.Publisher)
	return ok && other == pub
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values a transport needs. Consumer group and initial
// offset differ per consumer; the broker settings are shared.
type Config interface {
	GetPubSubSystem() string
	GetClientID() string

	// GetConsumerGroup is empty for publisher-only transports.
	GetConsumerGroup() string
	// GetInitialOffset is "earliest" or "latest".
	GetInitialOffset() string

	GetKafkaBrokers() []string
	GetRabbitMQURL() string
	GetNATSURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// Package channel provides an in-memory transport backed by Watermill's
// gochannel. All transports built in one process share a single bus so the
// producer, dispatcher and metrics consumer can run together without a
// broker. The bus persists messages, which gives late subscribers the
// "earliest" view Kafka consumer groups have.
//
// Persisted messages are never evicted, so memory grows with every publish
// until Reset or process exit. Use it for tests and local runs only; long
// running deployments need a real broker.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/eventrelay/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the bus creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

const busRetentionNotice = "In-memory bus keeps every published message until Reset; not for long-running deployments"

var (
	busMu  sync.Mutex
	busPub message.Publisher
	busSub message.Subscriber
)

func init() {
	Register()
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build returns a view of the process-wide bus. Closing the view only ends
// this consumer's subscriptions; the bus itself lives until Reset.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := shared(logger)
	return transport.Transport{
		Publisher:  &view{Publisher: pub},
		Subscriber: &view{Subscriber: sub},
	}, nil
}

func shared(logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	busMu.Lock()
	defer busMu.Unlock()
	if busPub == nil {
		busPub, busSub = Factory(gochannel.Config{Persistent: true}, logger)
		logger.Info(busRetentionNotice, nil)
	}
	return busPub, busSub
}

// Reset closes the shared bus. The next Build starts a fresh one.
func Reset() error {
	busMu.Lock()
	defer busMu.Unlock()
	if busPub == nil {
		return nil
	}
	err := busPub.Close()
	if sub, ok := busSub.(message.Publisher); !ok || sub != busPub {
		if serr := busSub.Close(); err == nil {
			err = serr
		}
	}
	busPub, busSub = nil, nil
	return err
}

type view struct {
	message.Publisher
	message.Subscriber
}

// Close is a no-op; subscriptions end when their context is cancelled.
func (v *view) Close() error { return nil }

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

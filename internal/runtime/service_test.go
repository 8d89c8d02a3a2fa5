package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	transportpkg "github.com/drblury/eventrelay/transport"
	"github.com/drblury/eventrelay/transport/transporttest"
)

func registerStubTransport(t *testing.T, name string) (*transporttest.Publisher, *transporttest.Subscriber, *transporttest.Config, *atomic.Int32) {
	t.Helper()
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}
	builds := &atomic.Int32{}
	transportpkg.Register(name, func(context.Context, transportpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		builds.Add(1)
		return transportpkg.Transport{Publisher: pub, Subscriber: sub}, nil
	})
	return pub, sub, &transporttest.Config{PubSubSystem: name, ConsumerGroup: "event-dispatcher", InitialOffset: "earliest"}, builds
}

func TestNewServiceBuildsTransportOnRun(t *testing.T) {
	pub, sub, cfg, builds := registerStubTransport(t, "service-test-stub")

	svc, err := NewService(context.Background(), "dispatcher", cfg, newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)
	assert.Zero(t, builds.Load(), "no broker connection before Run")

	svc.AddHandler("h", "uiCommand", func(*message.Message) error { return nil })
	svc.AddHandler("h2", "autoCommand", func(*message.Message) error { return nil })
	assert.Equal(t, []string{"h", "h2"}, svc.Handlers())

	// the stub subscriber closes its channel at once, so the router stops
	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, int32(1), builds.Load(), "one transport for all handlers")
	assert.True(t, sub.Closed)
	assert.True(t, pub.Closed)
}

func TestServiceCloseBeforeRunBuildsNothing(t *testing.T) {
	_, _, cfg, builds := registerStubTransport(t, "service-test-unused")

	svc, err := NewService(context.Background(), "metrics", cfg, newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)
	svc.Close()
	assert.Zero(t, builds.Load())
}

func TestTransportBuildFailureStopsConsumerFatally(t *testing.T) {
	boom := errors.New("kafka: client has run out of available brokers")
	transportpkg.Register("service-test-down", func(context.Context, transportpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, boom
	})

	svc, err := NewService(context.Background(), "dispatcher", &transporttest.Config{PubSubSystem: "service-test-down", ConsumerGroup: "event-dispatcher"}, newTestLogger(), ServiceDependencies{})
	require.NoError(t, err, "construction does not touch the broker")
	d, err := NewDispatcher(svc, &memorySink{}, DispatcherConfig{}, ConsumerDependencies{})
	require.NoError(t, err)

	err = d.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateStoppedFatal, d.State())
}

func TestDeferredSubscriber(t *testing.T) {
	t.Run("publisher-only transport is rejected", func(t *testing.T) {
		pub := &transporttest.Publisher{}
		d := newDeferredSubscriber(func(context.Context) (transportpkg.Transport, error) {
			return transportpkg.Transport{Publisher: pub}, nil
		})
		_, err := d.Subscribe(context.Background(), "uiCommand")
		assert.ErrorIs(t, err, errspkg.ErrSubscriberRequired)
		assert.True(t, pub.Closed)
	})

	t.Run("subscribe after close", func(t *testing.T) {
		d := newDeferredSubscriber(func(context.Context) (transportpkg.Transport, error) {
			t.Fatal("closed subscriber must not build")
			return transportpkg.Transport{}, nil
		})
		require.NoError(t, d.Close())
		require.NoError(t, d.Close())
		_, err := d.Subscribe(context.Background(), "uiCommand")
		assert.ErrorIs(t, err, errSubscriberClosed)
	})
}

func TestNewServiceErrors(t *testing.T) {
	_, err := NewService(context.Background(), "x", nil, nil, ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)

	_, err = NewService(context.Background(), "x", nil, newTestLogger(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = NewService(context.Background(), "x", &transporttest.Config{PubSubSystem: "carrier-pigeon"}, newTestLogger(), ServiceDependencies{})
	assert.ErrorIs(t, err, transportpkg.ErrUnknownTransport)

	pub := &transporttest.Publisher{}
	_, err = NewService(context.Background(), "x", nil, newTestLogger(), ServiceDependencies{
		Transport: &transportpkg.Transport{Publisher: pub},
	})
	assert.ErrorIs(t, err, errspkg.ErrSubscriberRequired)
	assert.True(t, pub.Closed, "a rejected transport is released")
}

func TestNewServiceMiddlewareFailureReleasesTransport(t *testing.T) {
	sub := &transporttest.Subscriber{}
	_, err := NewService(context.Background(), "x", nil, newTestLogger(), ServiceDependencies{
		Transport:   &transportpkg.Transport{Subscriber: sub},
		Middlewares: []MiddlewareRegistration{{Name: "broken"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register middleware broken")
	assert.True(t, sub.Closed)
}

type failingSubscriber struct{ transporttest.Subscriber }

var errSubscribe = errors.New("group coordinator unavailable")

func (*failingSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, errSubscribe
}

func TestSubscribeFailureStopsConsumerFatally(t *testing.T) {
	sub := &failingSubscriber{}
	svc, err := NewService(context.Background(), "dispatcher", nil, newTestLogger(), ServiceDependencies{
		Transport: &transportpkg.Transport{Subscriber: sub},
	})
	require.NoError(t, err)
	d, err := NewDispatcher(svc, &memorySink{}, DispatcherConfig{}, ConsumerDependencies{})
	require.NoError(t, err)

	err = d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errSubscribe)
	assert.Equal(t, StateStoppedFatal, d.State())
	assert.True(t, sub.Closed)
}

func TestServiceRunHonoursRouterOverride(t *testing.T) {
	orig := routerRun
	t.Cleanup(func() { routerRun = orig })
	routerRun = func(*message.Router, context.Context) error { return context.Canceled }

	svc := newTestService(t, "svc", newGoChannel(t), nil)
	assert.NoError(t, svc.Run(context.Background()), "cancellation is not an error")
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	sub := &transporttest.Subscriber{}
	svc, err := NewService(context.Background(), "svc", nil, newTestLogger(), ServiceDependencies{
		Transport: &transportpkg.Transport{Subscriber: sub},
	})
	require.NoError(t, err)
	svc.Close()
	svc.Close()
	assert.True(t, sub.Closed)
}

package runtime

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
)

// TopicProvisioner makes sure topics exist before a consumer subscribes.
type TopicProvisioner interface {
	EnsureTopics(ctx context.Context, names []string) error
}

// ConsumerDependencies are shared by the Dispatcher, the MetricsConsumer and
// the Bridge.
type ConsumerDependencies struct {
	// Provisioner runs before subscribing. Nil skips provisioning, as brokers
	// other than Kafka create destinations on demand.
	Provisioner TopicProvisioner
	// Metrics receives the relay counters. Nil uses a private registry.
	Metrics *RelayMetrics
}

// consumer drives the lifecycle every long-running consumer shares:
// provision, subscribe, consume, stop.
type consumer struct {
	service     *Service
	provisioner TopicProvisioner
	topics      []string
	state       *stateMachine
	metrics     *RelayMetrics
	consuming   sync.Once
}

func newConsumer(svc *Service, topics []string, deps ConsumerDependencies) (*consumer, error) {
	metrics := deps.Metrics
	if metrics == nil {
		var err error
		if metrics, err = NewRelayMetrics(prometheus.NewRegistry()); err != nil {
			return nil, err
		}
	}
	c := &consumer{
		service:     svc,
		provisioner: deps.Provisioner,
		topics:      topics,
		metrics:     metrics,
	}
	c.state = newStateMachine(func(from, to ConsumerState) {
		svc.Logger.Info("Consumer state changed", loggingpkg.LogFields{"from": from.String(), "to": to.String()})
	})
	return c, nil
}

// State returns the current lifecycle state.
func (c *consumer) State() ConsumerState {
	return c.state.Current()
}

// Metrics returns the relay counters the consumer records into.
func (c *consumer) Metrics() *RelayMetrics {
	return c.metrics
}

// run provisions the topics and consumes until ctx is cancelled. It returns
// nil on cancellation and the cause on a fatal stop.
func (c *consumer) run(ctx context.Context) error {
	if c.provisioner != nil {
		c.moveTo(StateProvisioning)
		if err := c.provisioner.EnsureTopics(ctx, c.topics); err != nil {
			c.service.Close()
			if ctx.Err() != nil {
				c.moveTo(StateStoppedGraceful)
				return nil
			}
			c.service.Logger.Error("Topic provisioning failed", err, loggingpkg.LogFields{"topics": c.topics})
			c.moveTo(StateStoppedFatal)
			return err
		}
	}

	go func() {
		select {
		case <-c.service.Running():
			c.moveTo(StateSubscribed)
		case <-ctx.Done():
		}
	}()

	if err := c.service.Run(ctx); err != nil {
		c.service.Logger.Error("Consumer stopped", err, nil)
		c.moveTo(StateStoppedFatal)
		return err
	}
	c.moveTo(StateStoppedGraceful)
	return nil
}

// markConsuming records that the first message arrived. A message can beat
// the Running notification, hence the explicit pass through Subscribed.
func (c *consumer) markConsuming() {
	c.consuming.Do(func() {
		c.moveTo(StateSubscribed)
		c.moveTo(StateConsuming)
	})
}

func (c *consumer) moveTo(next ConsumerState) {
	if err := c.state.Transition(next); err != nil {
		c.service.Logger.Debug("Ignoring state transition", loggingpkg.LogFields{"error": err.Error()})
	}
}

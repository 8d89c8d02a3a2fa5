package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"

	configpkg "github.com/drblury/eventrelay/internal/runtime/config"
	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/eventlog"
	"github.com/drblury/eventrelay/internal/runtime/events"
	"github.com/drblury/eventrelay/internal/runtime/gauges"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
	"github.com/drblury/eventrelay/internal/runtime/provision"
	transportpkg "github.com/drblury/eventrelay/transport"
)

// App wires the consumers and the producer from one Config. Every consumer
// gets its own transport; the gauge registry and relay metrics are shared.
type App struct {
	cfg     *configpkg.Config
	logger  loggingpkg.ServiceLogger
	gauges  *gauges.Registry
	metrics *RelayMetrics
}

// NewApp validates cfg and builds the shared metric registries.
func NewApp(cfg *configpkg.Config, logger loggingpkg.ServiceLogger) (*App, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}

	registry := gauges.New(gauges.WithNamespace(cfg.Metrics.Namespace), gauges.WithProcessMetrics())
	metrics, err := NewRelayMetrics(registry.Registerer())
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, logger: logger, gauges: registry, metrics: metrics}, nil
}

func (a *App) Config() *configpkg.Config   { return a.cfg }
func (a *App) Gauges() *gauges.Registry    { return a.gauges }
func (a *App) RelayMetrics() *RelayMetrics { return a.metrics }

// Provisioner returns the topic provisioner, or nil when the configured
// broker needs none or provisioning is disabled.
func (a *App) Provisioner() TopicProvisioner {
	if !a.cfg.Provision.Enabled {
		return nil
	}
	caps := transportpkg.GetCapabilities(a.cfg.Broker.PubSubSystem)
	if !caps.RequiresProvisioning && !a.cfg.ProvisioningRequired() {
		return nil
	}
	return provision.New(provision.Config{
		Brokers:           a.cfg.Broker.KafkaBrokers,
		ClientID:          a.cfg.Broker.ClientID,
		MaxAttempts:       a.cfg.Provision.MaxAttempts,
		Delay:             a.cfg.Provision.Delay,
		ReplicationFactor: a.cfg.Provision.ReplicationFactor,
	}, a.logger)
}

// Provision creates topics up front. It is a no-op on brokers that create
// destinations on demand. Cancellation stops it without an error; callers
// check ctx to tell a cancelled run from a completed one.
func (a *App) Provision(ctx context.Context, topics []events.Topic) error {
	p := a.Provisioner()
	if p == nil {
		a.logger.Info("Provisioning not required", loggingpkg.LogFields{"pubsub_system": a.cfg.Broker.PubSubSystem})
		return nil
	}
	if len(topics) == 0 {
		topics = events.AllTopics()
	}
	err := p.EnsureTopics(ctx, events.Names(topics))
	if err != nil && ctx.Err() != nil {
		a.logger.Info("Provisioning cancelled", loggingpkg.LogFields{"cause": err.Error()})
		return nil
	}
	return err
}

// OpenEventLog opens the configured durable log sink.
func (a *App) OpenEventLog(ctx context.Context) (eventlog.Sink, error) {
	return eventlog.Open(ctx, a.cfg.EventLog, a.logger)
}

func (a *App) newService(ctx context.Context, name, group, offset string) (*Service, error) {
	return NewService(ctx, name, a.cfg.ForConsumer(group, offset), a.logger, ServiceDependencies{
		Registerer: a.gauges.Registerer(),
	})
}

func (a *App) consumerDeps() ConsumerDependencies {
	return ConsumerDependencies{Provisioner: a.Provisioner(), Metrics: a.metrics}
}

// NewDispatcher builds the dispatcher on its own transport. The sink is
// not closed by the dispatcher.
func (a *App) NewDispatcher(ctx context.Context, sink eventlog.Sink) (*Dispatcher, error) {
	dc := a.cfg.Dispatcher
	topics, err := events.ParseTopics(dc.Topics)
	if err != nil {
		return nil, err
	}
	svc, err := a.newService(ctx, "dispatcher", dc.ConsumerGroup, dc.InitialOffset)
	if err != nil {
		return nil, err
	}
	d, err := NewDispatcher(svc, sink, DispatcherConfig{
		Topics:       topics,
		StepEncoding: StepEncoding(dc.StepEncoding),
		HealthPort:   dc.HealthPort,
	}, a.consumerDeps())
	if err != nil {
		svc.Close()
		return nil, err
	}
	return d, nil
}

// NewMetricsConsumer builds the sensor telemetry consumer on its own transport.
func (a *App) NewMetricsConsumer(ctx context.Context) (*MetricsConsumer, error) {
	mc := a.cfg.Metrics
	topic, err := events.ParseTopic(mc.Topic)
	if err != nil {
		return nil, err
	}
	svc, err := a.newService(ctx, "metrics", mc.ConsumerGroup, mc.InitialOffset)
	if err != nil {
		return nil, err
	}
	m, err := NewMetricsConsumer(svc, a.gauges, MetricsConsumerConfig{Topic: topic, Port: mc.Port}, a.consumerDeps())
	if err != nil {
		svc.Close()
		return nil, err
	}
	return m, nil
}

// NewBridge builds the legacy device bridge. A nil registrar posts to the
// configured device API.
func (a *App) NewBridge(ctx context.Context, registrar DeviceRegistrar) (*Bridge, error) {
	bc := a.cfg.Bridge
	topic, err := events.ParseTopic(bc.Topic)
	if err != nil {
		return nil, err
	}
	if registrar == nil {
		registrar = NewHTTPRegistrar(bc.DeviceAPIURL, bc.APIToken, bc.Timeout)
	}
	svc, err := a.newService(ctx, "bridge", bc.ConsumerGroup, bc.InitialOffset)
	if err != nil {
		return nil, err
	}
	b, err := NewBridge(svc, registrar, BridgeConfig{Topic: topic}, a.consumerDeps())
	if err != nil {
		svc.Close()
		return nil, err
	}
	return b, nil
}

// NewProducer builds a producer on a publisher-only view of the broker.
func (a *App) NewProducer(ctx context.Context) (*Producer, error) {
	tr, err := transportpkg.Build(ctx, a.cfg.ForProducer(), loggingpkg.NewWatermillAdapter(a.logger))
	if err != nil {
		return nil, err
	}
	if tr.Subscriber != nil {
		if closeErr := tr.Subscriber.Close(); closeErr != nil {
			a.logger.Warn("Closing unused subscriber failed", closeErr, nil)
		}
	}
	return NewProducer(tr.Publisher, a.logger, a.metrics)
}

// Runner is a long-running consumer.
type Runner interface {
	Run(ctx context.Context) error
}

// RunAll runs the dispatcher, the metrics consumer and the bridge until ctx
// is cancelled or one of them stops fatally, which cancels the others.
func (a *App) RunAll(ctx context.Context, registrar DeviceRegistrar) error {
	if a.Provisioner() != nil {
		// provision once rather than racing three provisioners
		if err := a.Provision(ctx, events.AllTopics()); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	sink, err := a.OpenEventLog(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			a.logger.Warn("Closing event log failed", err, nil)
		}
	}()

	dispatcher, err := a.NewDispatcher(ctx, sink)
	if err != nil {
		return err
	}
	metrics, err := a.NewMetricsConsumer(ctx)
	if err != nil {
		dispatcher.service.Close()
		return err
	}
	bridge, err := a.NewBridge(ctx, registrar)
	if err != nil {
		dispatcher.service.Close()
		metrics.service.Close()
		return err
	}
	// topics are ready; skip the per-consumer provisioning pass
	dispatcher.provisioner, metrics.provisioner, bridge.provisioner = nil, nil, nil

	return RunConcurrently(ctx, dispatcher, metrics, bridge)
}

// RunConcurrently runs every runner and returns the joined errors once all
// have stopped. A failing runner cancels the rest.
func RunConcurrently(ctx context.Context, runners ...Runner) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, r := range runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				cancel()
			}
		}(r)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// StepEncoding maps the configured encoding name.
func StepEncoding(name string) events.StepEncoding {
	if strings.EqualFold(name, configpkg.StepEncodingLegacyQuotes) {
		return events.StepsLegacyQuotes
	}
	return events.StepsStrict
}

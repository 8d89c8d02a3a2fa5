package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/events"
	"github.com/drblury/eventrelay/internal/runtime/gauges"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
)

// MetricsConsumerConfig configures the sensor telemetry consumer.
type MetricsConsumerConfig struct {
	// Topic defaults to sensorData.
	Topic events.Topic
	// Port serves the gauge registry at /metrics. Zero disables it.
	Port int
}

// MetricsConsumer turns sensor readings into gauges.
type MetricsConsumer struct {
	*consumer

	gauges *gauges.Registry
	logger loggingpkg.ServiceLogger
}

// NewMetricsConsumer subscribes svc to the sensor topic and serves the gauge
// registry on cfg.Port when it is set.
func NewMetricsConsumer(svc *Service, registry *gauges.Registry, cfg MetricsConsumerConfig, deps ConsumerDependencies) (*MetricsConsumer, error) {
	if svc == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if registry == nil {
		return nil, errspkg.ErrRegistryRequired
	}
	topic := cfg.Topic
	if topic == "" {
		topic = events.TopicSensorData
	}

	base, err := newConsumer(svc, []string{topic.String()}, deps)
	if err != nil {
		return nil, err
	}
	m := &MetricsConsumer{consumer: base, gauges: registry, logger: svc.Logger}
	svc.AddHandler("metrics-"+topic.String(), topic.String(), func(msg *message.Message) error {
		m.handle(msg)
		return nil
	})
	if cfg.Port > 0 {
		svc.RegisterHTTPHandler(cfg.Port, "/metrics", registry.Handler())
	}
	return m, nil
}

// Gauges returns the registry the consumer updates.
func (m *MetricsConsumer) Gauges() *gauges.Registry {
	return m.gauges
}

// Run consumes until ctx is cancelled.
func (m *MetricsConsumer) Run(ctx context.Context) error {
	return m.run(ctx)
}

func (m *MetricsConsumer) handle(msg *message.Message) {
	m.markConsuming()
	m.gauges.ObserveMessage()

	reading, err := events.DecodeSensorReading(msg.Payload)
	if err != nil {
		m.logger.Warn("Decoding sensor reading failed", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		m.gauges.ObserveDecodeFailure()
		return
	}
	if !reading.Observable() {
		m.logger.Debug("Sensor reading without name or value", loggingpkg.LogFields{"message_uuid": msg.UUID})
		return
	}
	m.gauges.SetLastValue(reading.Name, *reading.Value)
}

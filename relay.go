package eventrelay

import (
	"context"
	"io"
	"log/slog"
	"os"

	runtimepkg "github.com/drblury/eventrelay/internal/runtime"
	configpkg "github.com/drblury/eventrelay/internal/runtime/config"
	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/eventlog"
	"github.com/drblury/eventrelay/internal/runtime/events"
	"github.com/drblury/eventrelay/internal/runtime/gauges"
	jsoncodec "github.com/drblury/eventrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
	metadatapkg "github.com/drblury/eventrelay/internal/runtime/metadata"
	newtransport "github.com/drblury/eventrelay/transport"

	// every built-in transport registers itself
	_ "github.com/drblury/eventrelay/transport/transports"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = errspkg.ConfigValidationError
	ProvisioningError     = errspkg.ProvisioningError

	App                  = runtimepkg.App
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	ConsumerDependencies = runtimepkg.ConsumerDependencies
	ConsumerState        = runtimepkg.ConsumerState
	TopicProvisioner     = runtimepkg.TopicProvisioner
	Runner               = runtimepkg.Runner

	Dispatcher            = runtimepkg.Dispatcher
	DispatcherConfig      = runtimepkg.DispatcherConfig
	MetricsConsumer       = runtimepkg.MetricsConsumer
	MetricsConsumerConfig = runtimepkg.MetricsConsumerConfig
	Bridge                = runtimepkg.Bridge
	BridgeConfig          = runtimepkg.BridgeConfig
	DeviceRegistrar       = runtimepkg.DeviceRegistrar
	HTTPRegistrar         = runtimepkg.HTTPRegistrar

	Producer      = runtimepkg.Producer
	PublishOption = runtimepkg.PublishOption
	Receipt       = runtimepkg.Receipt
	ReceiptStatus = runtimepkg.ReceiptStatus

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	RelayMetrics         = runtimepkg.RelayMetrics
	RelayMetricsSnapshot = runtimepkg.RelayMetricsSnapshot
	TopicStats           = runtimepkg.TopicStats
	GaugeRegistry        = gauges.Registry

	Topic          = events.Topic
	Sensor         = events.Sensor
	SensorReading  = events.SensorReading
	Scenario       = events.Scenario
	AutomationStep = events.AutomationStep
	Device         = events.Device

	EventSink   = eventlog.Sink
	Event       = eventlog.Event
	StoredEvent = eventlog.StoredEvent

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

const (
	TopicSensorData               = events.TopicSensorData
	TopicAutoCommand              = events.TopicAutoCommand
	TopicUICommand                = events.TopicUICommand
	TopicLegacyAddDevice          = events.TopicLegacyAddDevice
	TopicDeleteDeviceNotification = events.TopicDeleteDeviceNotification

	StatusRejected  = runtimepkg.StatusRejected
	StatusAccepted  = runtimepkg.StatusAccepted
	StatusDelivered = runtimepkg.StatusDelivered

	StateDisconnected    = runtimepkg.StateDisconnected
	StateProvisioning    = runtimepkg.StateProvisioning
	StateSubscribed      = runtimepkg.StateSubscribed
	StateConsuming       = runtimepkg.StateConsuming
	StateStoppedGraceful = runtimepkg.StateStoppedGraceful
	StateStoppedFatal    = runtimepkg.StateStoppedFatal
)

var (
	LoadConfig     = configpkg.Load
	DefaultConfig  = configpkg.Default
	ValidateConfig = configpkg.ValidateConfig

	NewApp             = runtimepkg.NewApp
	NewService         = runtimepkg.NewService
	NewDispatcher      = runtimepkg.NewDispatcher
	NewMetricsConsumer = runtimepkg.NewMetricsConsumer
	NewBridge          = runtimepkg.NewBridge
	NewHTTPRegistrar   = runtimepkg.NewHTTPRegistrar
	NewProducer        = runtimepkg.NewProducer
	NewRelayMetrics    = runtimepkg.NewRelayMetrics
	RunConcurrently    = runtimepkg.RunConcurrently

	WithPartitionKey  = runtimepkg.WithPartitionKey
	WithCorrelationID = runtimepkg.WithCorrelationID

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	SkipFailuresMiddleware  = runtimepkg.SkipFailuresMiddleware
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	AllTopics   = events.AllTopics
	ParseTopic  = events.ParseTopic
	ParseTopics = events.ParseTopics

	OpenEventLog = eventlog.Open

	NewGaugeRegistry = gauges.New

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	RegisterTransport = newtransport.Register
	BuildTransport    = newtransport.Build
	GetCapabilities   = newtransport.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrUnknownTopic       = errspkg.ErrUnknownTopic
	ErrInvalidPayload     = errspkg.ErrInvalidPayload
	ErrSinkRequired       = errspkg.ErrSinkRequired
	ErrSinkClosed         = errspkg.ErrSinkClosed
	ErrTopicNotReady      = errspkg.ErrTopicNotReady
	ErrProducerClosed     = errspkg.ErrProducerClosed
	ErrUnknownTransport   = newtransport.ErrUnknownTransport
)

// NewLogger builds the service logger described by cfg. Output "stderr"
// writes to standard error; anything else writes to standard output.
func NewLogger(cfg configpkg.LoggingConfig, version string) ServiceLogger {
	var out io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}
	return loggingpkg.NewSlogServiceLogger(loggingpkg.New(loggingpkg.Options{
		Level:   cfg.Level,
		Format:  cfg.Format,
		Output:  out,
		Version: version,
	}))
}

// NewTextLogger is a convenience for examples and tools.
func NewTextLogger(w io.Writer, level slog.Level) ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// Publish is a one-shot helper: it builds a producer from cfg, publishes one
// event and closes the producer.
func Publish(ctx context.Context, cfg *Config, logger ServiceLogger, topic Topic, payload any, opts ...PublishOption) (Receipt, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return Receipt{}, err
	}
	producer, err := app.NewProducer(ctx)
	if err != nil {
		return Receipt{}, err
	}
	receipt := producer.Publish(ctx, topic, payload, opts...)
	return receipt, producer.Close()
}

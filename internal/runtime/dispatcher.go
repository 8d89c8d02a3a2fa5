package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/eventlog"
	"github.com/drblury/eventrelay/internal/runtime/events"
	"github.com/drblury/eventrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
)

// DispatcherConfig selects the topics the dispatcher follows.
type DispatcherConfig struct {
	// Topics defaults to every known topic.
	Topics       []events.Topic
	StepEncoding events.StepEncoding
	// HealthPort serves liveness and readiness. Zero disables it.
	HealthPort int
}

// Dispatcher mirrors every event it receives into the event log and runs
// the per-topic handling on top.
type Dispatcher struct {
	*consumer

	sink     eventlog.Sink
	encoding events.StepEncoding
	logger   loggingpkg.ServiceLogger
}

// NewDispatcher registers one handler per topic on svc.
func NewDispatcher(svc *Service, sink eventlog.Sink, cfg DispatcherConfig, deps ConsumerDependencies) (*Dispatcher, error) {
	if svc == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if sink == nil {
		return nil, errspkg.ErrSinkRequired
	}
	topics := cfg.Topics
	if len(topics) == 0 {
		topics = events.AllTopics()
	}
	for _, t := range topics {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownTopic, t)
		}
	}

	base, err := newConsumer(svc, events.Names(topics), deps)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		consumer: base,
		sink:     sink,
		encoding: cfg.StepEncoding,
		logger:   svc.Logger,
	}
	for _, t := range topics {
		topic := t
		svc.AddHandler("dispatch-"+topic.String(), topic.String(), func(msg *message.Message) error {
			d.handle(msg.Context(), topic, msg)
			return nil
		})
	}
	registerHealthEndpoints(svc, cfg.HealthPort, d.State)
	return d, nil
}

// Run consumes until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.run(ctx)
}

func (d *Dispatcher) handle(ctx context.Context, topic events.Topic, msg *message.Message) {
	d.markConsuming()
	fields := loggingpkg.LogFields{"topic": topic.String(), "message_uuid": msg.UUID}

	if !jsoncodec.Valid(msg.Payload) {
		d.logger.Warn("Skipping message with invalid JSON", errspkg.ErrInvalidPayload, fields)
		d.metrics.RecordDecodeFailure(topic.String())
		return
	}

	record := eventlog.NewRecord(topic.String(), msg.Payload)
	if err := d.sink.Append(ctx, record.StreamID, record.Event()); err != nil {
		d.logger.Warn("Appending event to log failed", err, fields)
		d.metrics.RecordAppendFailure(record.StreamID)
	}

	switch topic {
	case events.TopicAutoCommand:
		d.handleAutoCommand(msg.Payload, fields)
	case events.TopicUICommand:
		d.logger.Info("Received UI command", loggingpkg.LogFields{"topic": topic.String(), "payload": string(msg.Payload)})
	default:
		d.logger.Debug("Relayed event", fields)
	}
	d.metrics.RecordDispatched(topic.String())
}

func (d *Dispatcher) handleAutoCommand(payload []byte, fields loggingpkg.LogFields) {
	scenario, err := events.ParseScenario(payload, d.encoding)
	if err != nil {
		d.logger.Warn("Parsing automation steps failed", err, fields)
		d.metrics.RecordStepParseFailure()
		return
	}
	for _, step := range scenario.Ordered() {
		d.logger.Info("Automation step", loggingpkg.LogFields{
			"order":     step.Order,
			"action":    step.Action,
			"device_id": string(step.DeviceID),
			"type":      step.Type,
		})
	}
}

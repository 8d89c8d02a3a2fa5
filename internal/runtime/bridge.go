package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/events"
	"github.com/drblury/eventrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
)

const defaultRegistrarTimeout = 10 * time.Second

// DeviceRegistrar stores a device in the device management system.
type DeviceRegistrar interface {
	Register(ctx context.Context, device events.Device) error
}

// HTTPRegistrar posts devices as JSON to the device management API.
type HTTPRegistrar struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPRegistrar returns a registrar for endpoint. An empty token sends no
// Authorization header.
func NewHTTPRegistrar(endpoint, token string, timeout time.Duration) *HTTPRegistrar {
	if timeout <= 0 {
		timeout = defaultRegistrarTimeout
	}
	return &HTTPRegistrar{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Register POSTs device as JSON. Any non-2xx answer is an error.
func (r *HTTPRegistrar) Register(ctx context.Context, device events.Device) error {
	body, err := jsoncodec.Marshal(device)
	if err != nil {
		return fmt.Errorf("encoding device: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("device registration returned %s", resp.Status)
	}
	return nil
}

// BridgeConfig configures the legacy device bridge.
type BridgeConfig struct {
	// Topic defaults to legacyAddDevice.
	Topic events.Topic
}

// Bridge registers devices announced on the legacy topic.
type Bridge struct {
	*consumer

	registrar DeviceRegistrar
	logger    loggingpkg.ServiceLogger
}

// NewBridge subscribes svc to the legacy device topic and hands every
// decoded sensor to registrar.
func NewBridge(svc *Service, registrar DeviceRegistrar, cfg BridgeConfig, deps ConsumerDependencies) (*Bridge, error) {
	if svc == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if registrar == nil {
		return nil, errspkg.ErrRegistrarRequired
	}
	topic := cfg.Topic
	if topic == "" {
		topic = events.TopicLegacyAddDevice
	}

	base, err := newConsumer(svc, []string{topic.String()}, deps)
	if err != nil {
		return nil, err
	}
	b := &Bridge{consumer: base, registrar: registrar, logger: svc.Logger}
	svc.AddHandler("bridge-"+topic.String(), topic.String(), func(msg *message.Message) error {
		b.handle(msg.Context(), topic, msg)
		return nil
	})
	return b, nil
}

// Run consumes until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	return b.run(ctx)
}

func (b *Bridge) handle(ctx context.Context, topic events.Topic, msg *message.Message) {
	b.markConsuming()
	fields := loggingpkg.LogFields{"message_uuid": msg.UUID}

	sensor, err := events.DecodeSensor(msg.Payload)
	if err != nil {
		b.logger.Warn("Decoding legacy sensor failed", err, fields)
		b.metrics.RecordDecodeFailure(topic.String())
		return
	}

	device := events.DeviceFromLegacySensor(sensor)
	fields["device_id"] = device.ID.String()
	fields["device_name"] = device.Name
	if err := b.registrar.Register(ctx, device); err != nil {
		b.logger.Warn("Registering legacy device failed", err, fields)
		b.metrics.RecordRegistrationFailure()
		return
	}
	b.logger.Info("Registered legacy device", fields)
}

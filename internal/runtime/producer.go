package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/events"
	idspkg "github.com/drblury/eventrelay/internal/runtime/ids"
	"github.com/drblury/eventrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
	metadatapkg "github.com/drblury/eventrelay/internal/runtime/metadata"
)

// ReceiptStatus tells how far a published event is known to have travelled.
type ReceiptStatus int

const (
	// StatusRejected means the event never left the process.
	StatusRejected ReceiptStatus = iota
	// StatusAccepted means the event was handed to the publisher but the
	// broker did not confirm it.
	StatusAccepted
	// StatusDelivered means the broker acknowledged the event.
	StatusDelivered
)

func (s ReceiptStatus) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusAccepted:
		return "accepted"
	case StatusDelivered:
		return "delivered"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Receipt is the outcome of Producer.Publish.
type Receipt struct {
	Status    ReceiptStatus
	MessageID string
	Topic     events.Topic
	// Err is the rejection cause or the broker error.
	Err error
}

// OK reports whether the event was handed to the publisher. Accepted counts:
// delivery is at-most-once.
func (r Receipt) OK() bool {
	return r.Status != StatusRejected
}

// PublishOption tweaks a single Publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	partitionKey  string
	correlationID string
}

// WithPartitionKey routes the event by key on transports that partition.
func WithPartitionKey(key string) PublishOption {
	return func(o *publishOptions) { o.partitionKey = key }
}

// WithCorrelationID sets the correlation header. Without it the message id
// is used.
func WithCorrelationID(id string) PublishOption {
	return func(o *publishOptions) { o.correlationID = id }
}

// Producer publishes events for any number of concurrent callers over one
// shared publisher. Broker failures never surface as errors, only as an
// Accepted receipt, a warn log and relay_produce_failures_total.
type Producer struct {
	publisher message.Publisher
	logger    loggingpkg.ServiceLogger
	metrics   *RelayMetrics
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewProducer wraps publisher. The producer owns it and closes it on Close.
func NewProducer(publisher message.Publisher, logger loggingpkg.ServiceLogger, metrics *RelayMetrics) (*Producer, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &Producer{
		publisher: publisher,
		logger:    logger.With(loggingpkg.LogFields{"component": "producer"}),
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// Publish serialises payload and sends it to topic. []byte and
// json.RawMessage payloads are sent as-is once they are known to be JSON.
func (p *Producer) Publish(ctx context.Context, topic events.Topic, payload any, opts ...PublishOption) Receipt {
	if ctx == nil {
		ctx = context.Background()
	}
	receipt := Receipt{Topic: topic}

	if !topic.Valid() {
		receipt.Err = fmt.Errorf("%w: %q", errspkg.ErrUnknownTopic, topic)
		return receipt
	}
	data, err := encodePayload(payload)
	if err != nil {
		receipt.Err = err
		return receipt
	}

	var po publishOptions
	for _, opt := range opts {
		opt(&po)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		receipt.Err = errspkg.ErrProducerClosed
		return receipt
	}

	now := p.now()
	receipt.MessageID = idspkg.NewAt(now)
	correlationID := po.correlationID
	if correlationID == "" {
		correlationID = receipt.MessageID
	}

	msg := message.NewMessage(receipt.MessageID, data)
	msg.Metadata = metadatapkg.ToWatermill(
		metadatapkg.ForEvent(topic.String(), now).
			With(metadatapkg.KeyPartitionKey, po.partitionKey).
			With(metadatapkg.KeyCorrelationID, correlationID),
	)

	ctx, span := otel.Tracer(tracerName).Start(ctx, topic.String()+" publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.message.id", receipt.MessageID),
		attribute.String("messaging.destination.name", topic.String()),
	)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic.String(), msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("Publishing event failed", err, loggingpkg.LogFields{
			"topic":      topic.String(),
			"message_id": receipt.MessageID,
		})
		if p.metrics != nil {
			p.metrics.RecordProduceFailure(topic.String())
		}
		receipt.Status = StatusAccepted
		receipt.Err = err
		return receipt
	}

	receipt.Status = StatusDelivered
	return receipt
}

// Close waits for in-flight publishes and closes the publisher. Later calls
// return nil.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

func encodePayload(payload any) ([]byte, error) {
	var data []byte
	switch v := payload.(type) {
	case nil:
		return nil, fmt.Errorf("%w: payload is nil", errspkg.ErrInvalidPayload)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		encoded, err := jsoncodec.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errspkg.ErrInvalidPayload, err)
		}
		return encoded, nil
	}
	if !jsoncodec.Valid(data) {
		return nil, errspkg.ErrInvalidPayload
	}
	return data, nil
}

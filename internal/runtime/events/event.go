package events

import (
	"fmt"
	"slices"
	"time"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/jsoncodec"
)

// DomainEvent is one message on a topic. It is immutable once built.
type DomainEvent struct {
	Topic     Topic
	Payload   []byte
	Timestamp time.Time
}

// NewDomainEvent validates the topic and payload and copies the payload.
func NewDomainEvent(topic Topic, payload []byte, timestamp time.Time) (DomainEvent, error) {
	if !topic.Valid() {
		return DomainEvent{}, fmt.Errorf("%w: %q", errspkg.ErrUnknownTopic, topic)
	}
	if !jsoncodec.Valid(payload) {
		return DomainEvent{}, errspkg.ErrInvalidPayload
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	return DomainEvent{
		Topic:     topic,
		Payload:   slices.Clone(payload),
		Timestamp: timestamp.UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (e DomainEvent) Decode(v any) error {
	return jsoncodec.Unmarshal(e.Payload, v)
}

// Package eventlog holds the durable, append-only sinks the dispatcher mirrors
// every relayed event into.
package eventlog

import (
	"context"
	"slices"
	"time"
)

// Event is a single entry appended to a stream.
type Event struct {
	Type string
	Data []byte
}

// Record pairs an event with the stream it belongs to.
type Record struct {
	StreamID  string
	EventType string
	Data      []byte
}

// NewRecord builds the record for a payload received on topic. The stream id
// and the event type are both the topic; the payload is copied untouched.
func NewRecord(topic string, payload []byte) Record {
	return Record{
		StreamID:  topic,
		EventType: topic,
		Data:      slices.Clone(payload),
	}
}

// Event returns the appendable part of the record.
func (r Record) Event() Event {
	return Event{Type: r.EventType, Data: r.Data}
}

// Sink appends events to named streams. Implementations are safe for
// concurrent use. Append never retries; failures are returned to the caller.
type Sink interface {
	Append(ctx context.Context, streamID string, event Event) error
	Close() error
}

// StoredEvent is an entry read back from a sink that supports reads.
type StoredEvent struct {
	ID         string
	StreamID   string
	EventType  string
	Data       []byte
	RecordedAt time.Time
}

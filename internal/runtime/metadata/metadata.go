// Package metadata defines the headers carried alongside every relayed event.
package metadata

import "time"

// Header keys written by the producer and read by consumers and transports.
const (
	KeyTopic         = "event_topic"
	KeyPublishedAt   = "event_published_at"
	KeyPartitionKey  = "partition_key"
	KeyCorrelationID = "correlation_id"
)

// Metadata represents the headers carried alongside an event.
type Metadata map[string]string

// ForEvent returns the headers every published event starts with.
func ForEvent(topic string, publishedAt time.Time) Metadata {
	return Metadata{
		KeyTopic:       topic,
		KeyPublishedAt: publishedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
// Empty values are skipped.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	if value != "" {
		cloned[key] = value
	}
	return cloned
}

// PublishedAt parses the producer timestamp header.
func (m Metadata) PublishedAt() (time.Time, bool) {
	raw, ok := m[KeyPublishedAt]
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const relayNamespace = "relay"

// RelayMetrics counts what the relay did with each message. One instance is
// shared by every component of a process.
type RelayMetrics struct {
	mu         sync.RWMutex
	topics     map[string]*TopicStats
	stepErrors uint64

	dispatched         *prometheus.CounterVec
	decodeFailures     *prometheus.CounterVec
	appendFailures     *prometheus.CounterVec
	stepParseFailures  prometheus.Counter
	produceFailures    *prometheus.CounterVec
	registrationErrors prometheus.Counter
}

// TopicStats is the per-topic view of RelayMetrics.
type TopicStats struct {
	Dispatched      uint64    `json:"dispatched"`
	DecodeFailures  uint64    `json:"decode_failures"`
	AppendFailures  uint64    `json:"append_failures"`
	ProduceFailures uint64    `json:"produce_failures"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

// RelayMetricsSnapshot is a point-in-time copy of RelayMetrics.
type RelayMetricsSnapshot struct {
	Topics            map[string]TopicStats `json:"topics"`
	StepParseFailures uint64                `json:"step_parse_failures"`
	CollectedAt       time.Time             `json:"collected_at"`
}

func newRelayCounterVec(name, help, label string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Name:      name,
		Help:      help,
	}, []string{label})
}

func newRelayCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Name:      name,
		Help:      help,
	})
}

// NewRelayMetrics creates the relay counters and registers them on reg. A
// nil registerer keeps the counters unregistered. Collectors already present
// on reg are reused.
func NewRelayMetrics(reg prometheus.Registerer) (*RelayMetrics, error) {
	m := &RelayMetrics{
		topics:             make(map[string]*TopicStats),
		dispatched:         newRelayCounterVec("dispatched_total", "Messages fully handled by the dispatcher", "topic"),
		decodeFailures:     newRelayCounterVec("decode_failures_total", "Messages skipped because the payload was not valid JSON", "topic"),
		appendFailures:     newRelayCounterVec("append_failures_total", "Event log appends that failed", "stream"),
		stepParseFailures:  newRelayCounter("step_parse_failures_total", "autoCommand payloads whose steps could not be parsed"),
		produceFailures:    newRelayCounterVec("produce_failures_total", "Publishes the broker did not confirm", "topic"),
		registrationErrors: newRelayCounter("device_registration_failures_total", "Legacy devices the device API did not accept"),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.dispatched, err = registerOrGet(reg, m.dispatched); err != nil {
		return nil, err
	}
	if m.decodeFailures, err = registerOrGet(reg, m.decodeFailures); err != nil {
		return nil, err
	}
	if m.appendFailures, err = registerOrGet(reg, m.appendFailures); err != nil {
		return nil, err
	}
	if m.produceFailures, err = registerOrGet(reg, m.produceFailures); err != nil {
		return nil, err
	}
	if m.stepParseFailures, err = registerOrGet(reg, m.stepParseFailures); err != nil {
		return nil, err
	}
	if m.registrationErrors, err = registerOrGet(reg, m.registrationErrors); err != nil {
		return nil, err
	}
	return m, nil
}

func registerOrGet[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *RelayMetrics) RecordDispatched(topic string) {
	m.dispatched.WithLabelValues(topic).Inc()
	m.update(topic, func(s *TopicStats) { s.Dispatched++ })
}

func (m *RelayMetrics) RecordDecodeFailure(topic string) {
	m.decodeFailures.WithLabelValues(topic).Inc()
	m.update(topic, func(s *TopicStats) { s.DecodeFailures++ })
}

// RecordAppendFailure counts by stream id, which is the source topic.
func (m *RelayMetrics) RecordAppendFailure(stream string) {
	m.appendFailures.WithLabelValues(stream).Inc()
	m.update(stream, func(s *TopicStats) { s.AppendFailures++ })
}

func (m *RelayMetrics) RecordProduceFailure(topic string) {
	m.produceFailures.WithLabelValues(topic).Inc()
	m.update(topic, func(s *TopicStats) { s.ProduceFailures++ })
}

func (m *RelayMetrics) RecordStepParseFailure() {
	m.stepParseFailures.Inc()
	m.mu.Lock()
	m.stepErrors++
	m.mu.Unlock()
}

func (m *RelayMetrics) RecordRegistrationFailure() {
	m.registrationErrors.Inc()
}

func (m *RelayMetrics) update(topic string, fn func(*TopicStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.topics[topic]
	if !ok {
		stats = &TopicStats{}
		m.topics[topic] = stats
	}
	fn(stats)
	stats.LastSeenAt = time.Now()
}

// Topic returns the stats of one topic.
func (m *RelayMetrics) Topic(topic string) TopicStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if stats, ok := m.topics[topic]; ok {
		return *stats
	}
	return TopicStats{}
}

// Snapshot copies the current per-topic stats.
func (m *RelayMetrics) Snapshot() RelayMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topics := make(map[string]TopicStats, len(m.topics))
	for name, stats := range m.topics {
		topics[name] = *stats
	}
	return RelayMetricsSnapshot{
		Topics:            topics,
		StepParseFailures: m.stepErrors,
		CollectedAt:       time.Now(),
	}
}

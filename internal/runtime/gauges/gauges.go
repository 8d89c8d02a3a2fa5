// Package gauges holds the live per-sensor metric state exposed to scrapers.
//
// A Registry is an explicit object with its own prometheus.Registry; nothing
// is registered on the process-wide default registerer.
package gauges

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "sensor"

// Registry tracks the message counter and the last value per sensor.
type Registry struct {
	namespace string
	registry  *prometheus.Registry

	messagesTotal  prometheus.Counter
	decodeFailures prometheus.Counter
	lastValue      *prometheus.GaugeVec

	mu     sync.RWMutex
	values map[string]float64
	count  uint64
}

// Option customises a Registry.
type Option func(*options)

type options struct {
	namespace      string
	processMetrics bool
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithProcessMetrics also exposes Go runtime and process collectors.
func WithProcessMetrics() Option {
	return func(o *options) { o.processMetrics = true }
}

// New creates a Registry with its collectors registered.
func New(opts ...Option) *Registry {
	o := options{namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		namespace: o.namespace,
		registry:  prometheus.NewRegistry(),
		messagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "messages_total",
			Help:      "Total telemetry messages received.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "decode_failures_total",
			Help:      "Telemetry messages that could not be decoded.",
		}),
		lastValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "last_value",
			Help:      "Last value reported per sensor.",
		}, []string{"sensor_name"}),
		values: make(map[string]float64),
	}

	r.registry.MustRegister(r.messagesTotal, r.decodeFailures, r.lastValue)
	if o.processMetrics {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Namespace returns the metric name prefix.
func (r *Registry) Namespace() string { return r.namespace }

// ObserveMessage counts one received message, decodable or not.
func (r *Registry) ObserveMessage() {
	r.messagesTotal.Inc()
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

// ObserveDecodeFailure counts one message that could not be decoded.
func (r *Registry) ObserveDecodeFailure() {
	r.decodeFailures.Inc()
}

// SetLastValue replaces the gauge for sensor. Entries are never merged or removed.
func (r *Registry) SetLastValue(sensor string, value float64) {
	r.lastValue.WithLabelValues(sensor).Set(value)
	r.mu.Lock()
	r.values[sensor] = value
	r.mu.Unlock()
}

// LastValue returns the current gauge for sensor.
func (r *Registry) LastValue(sensor string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[sensor]
	return v, ok
}

// MessagesTotal returns the number of observed messages.
func (r *Registry) MessagesTotal() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Sensors lists the sensor names that have a gauge, sorted.
func (r *Registry) Sensors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.values))
	for name := range r.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies the current gauge state.
func (r *Registry) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Registerer lets other components put their collectors on the same endpoint.
func (r *Registry) Registerer() prometheus.Registerer { return r.registry }

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

package runtime

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/gauges"
)

func TestMetricsConsumerLastValueWins(t *testing.T) {
	pubSub := newGoChannel(t)
	registry := gauges.New()
	m, err := NewMetricsConsumer(newTestService(t, "metrics", pubSub, nil), registry, MetricsConsumerConfig{}, ConsumerDependencies{})
	require.NoError(t, err)

	const n = 25
	for i := 1; i <= n; i++ {
		publishRaw(t, pubSub, "sensorData", fmt.Sprintf(`{"id":3,"name":"living-room","value":%d.5,"timestamp":"2024-03-01T10:00:%02dZ"}`, i, i))
	}

	runInBackground(t, m)
	require.Eventually(t, func() bool { return registry.MessagesTotal() == n }, eventually, tick)

	v, ok := registry.LastValue("living-room")
	require.True(t, ok)
	assert.Equal(t, 25.5, v)
	assert.Equal(t, []string{"living-room"}, registry.Sensors())
	assert.Equal(t, StateConsuming, m.State())
}

func TestMetricsConsumerCountsUndecodableMessages(t *testing.T) {
	pubSub := newGoChannel(t)
	registry := gauges.New(gauges.WithNamespace("home"))
	logger := newRecordingLogger()
	m, err := NewMetricsConsumer(newTestService(t, "metrics", pubSub, logger), registry, MetricsConsumerConfig{}, ConsumerDependencies{})
	require.NoError(t, err)

	publishRaw(t, pubSub, "sensorData", `not json at all`)
	publishRaw(t, pubSub, "sensorData", `{"name":"garage"}`)
	publishRaw(t, pubSub, "sensorData", `{"value":3}`)
	publishRaw(t, pubSub, "sensorData", `{"name":"garage","value":-4}`)

	runInBackground(t, m)
	require.Eventually(t, func() bool { return registry.MessagesTotal() == 4 }, eventually, tick)

	assert.Equal(t, map[string]float64{"garage": -4}, registry.Snapshot())
	assert.Len(t, logger.find("warn", "Decoding sensor reading failed"), 1)

	expected := `
# HELP home_decode_failures_total Telemetry messages that could not be decoded.
# TYPE home_decode_failures_total counter
home_decode_failures_total 1
# HELP home_messages_total Total telemetry messages received.
# TYPE home_messages_total counter
home_messages_total 4
`
	require.NoError(t, testutil.GatherAndCompare(registry.Gatherer(), strings.NewReader(expected),
		"home_messages_total", "home_decode_failures_total"))
}

func TestMetricsConsumerServesMetricsEndpoint(t *testing.T) {
	pubSub := newGoChannel(t)
	svc := newTestService(t, "metrics", pubSub, nil)
	_, err := NewMetricsConsumer(svc, gauges.New(), MetricsConsumerConfig{Port: 5000}, ConsumerDependencies{})
	require.NoError(t, err)

	mux, ok := svc.httpServers[5000]
	require.True(t, ok)
	_, pattern := mux.Handler(httptestRequest("/metrics"))
	assert.Equal(t, "/metrics", pattern)
}

func TestNewMetricsConsumerRequiresRegistry(t *testing.T) {
	_, err := NewMetricsConsumer(newTestService(t, "metrics", newGoChannel(t), nil), nil, MetricsConsumerConfig{}, ConsumerDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrRegistryRequired)
}

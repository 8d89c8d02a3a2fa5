package runtime

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayMetricsRecordAndSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewRelayMetrics(reg)
	require.NoError(t, err)

	m.RecordDispatched("sensorData")
	m.RecordDispatched("sensorData")
	m.RecordDecodeFailure("sensorData")
	m.RecordAppendFailure("uiCommand")
	m.RecordProduceFailure("autoCommand")
	m.RecordStepParseFailure()
	m.RecordRegistrationFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatched.WithLabelValues("sensorData")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.appendFailures.WithLabelValues("uiCommand")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepParseFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registrationErrors))

	sensor := m.Topic("sensorData")
	assert.Equal(t, uint64(2), sensor.Dispatched)
	assert.Equal(t, uint64(1), sensor.DecodeFailures)
	assert.False(t, sensor.LastSeenAt.IsZero())
	assert.Zero(t, m.Topic("legacyAddDevice").Dispatched)

	snap := m.Snapshot()
	assert.Len(t, snap.Topics, 3)
	assert.Equal(t, uint64(1), snap.Topics["autoCommand"].ProduceFailures)
	assert.Equal(t, uint64(1), snap.StepParseFailures)
}

func TestNewRelayMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewRelayMetrics(reg)
	require.NoError(t, err)
	second, err := NewRelayMetrics(reg)
	require.NoError(t, err)

	first.RecordDispatched("uiCommand")
	second.RecordDispatched("uiCommand")
	assert.Equal(t, 2.0, testutil.ToFloat64(second.dispatched.WithLabelValues("uiCommand")))
}

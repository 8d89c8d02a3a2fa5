package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRecordUsesTopicForStreamAndType(t *testing.T) {
	payload := []byte(`{"name":"kitchen","value":21.5}`)
	rec := NewRecord("sensorData", payload)

	assert.Equal(t, "sensorData", rec.StreamID)
	assert.Equal(t, "sensorData", rec.EventType)
	assert.Equal(t, payload, rec.Data)

	payload[0] = '['
	assert.Equal(t, byte('{'), rec.Data[0], "record must not alias the payload")

	ev := rec.Event()
	assert.Equal(t, "sensorData", ev.Type)
	assert.Equal(t, rec.Data, ev.Data)
}

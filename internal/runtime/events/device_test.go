package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDeviceFromLegacySensor(t *testing.T) {
	tests := []struct {
		name       string
		sensor     Sensor
		wantModel  string
		wantStatus string
	}{
		{"unit wins", Sensor{Name: "t1", Type: "temperature", Unit: "C", Location: "kitchen", Status: "active"}, "C", "active"},
		{"location fallback", Sensor{Name: "t2", Location: "hall"}, "hall", "inactive"},
		{"defaults", Sensor{Name: "t3", Unit: "  "}, "legacy-sensor", "inactive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DeviceFromLegacySensor(tt.sensor)
			assert.NotEqual(t, uuid.Nil, d.ID)
			assert.Equal(t, tt.sensor.Name, d.Name)
			assert.Equal(t, tt.sensor.Type, d.Type)
			assert.Equal(t, tt.wantModel, d.Model)
			assert.Equal(t, tt.wantStatus, d.Status)
			assert.Equal(t, "legacy-1.0", d.FirmwareVersion)
			assert.Nil(t, d.RoomID)
		})
	}
}

func TestDeviceFromLegacySensorFreshIDs(t *testing.T) {
	s := Sensor{Name: "same"}
	assert.NotEqual(t, DeviceFromLegacySensor(s).ID, DeviceFromLegacySensor(s).ID)
}

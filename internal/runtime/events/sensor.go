package events

import (
	"strings"
	"time"

	"github.com/drblury/eventrelay/internal/runtime/jsoncodec"
)

// timestampLayouts lists the encodings producers are known to emit. The
// second form has no zone and is read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Sensor is the sensor document carried on sensorData and legacyAddDevice.
type Sensor struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Location  string   `json:"location,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Status    string   `json:"status,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// SensorReading is the part of a Sensor the gauge registry cares about.
type SensorReading struct {
	Name      string
	Value     *float64
	Timestamp time.Time
}

// DecodeSensor parses a sensor document.
func DecodeSensor(payload []byte) (Sensor, error) {
	var s Sensor
	if err := jsoncodec.Unmarshal(payload, &s); err != nil {
		return Sensor{}, err
	}
	return s, nil
}

// DecodeSensorReading parses a payload straight into a reading.
func DecodeSensorReading(payload []byte) (SensorReading, error) {
	s, err := DecodeSensor(payload)
	if err != nil {
		return SensorReading{}, err
	}
	return s.Reading(), nil
}

// Reading projects the sensor onto a reading. An unparseable or missing
// timestamp yields the zero time.
func (s Sensor) Reading() SensorReading {
	return SensorReading{
		Name:      s.Name,
		Value:     s.Value,
		Timestamp: parseTimestamp(s.Timestamp),
	}
}

// Observable reports whether the reading can update a gauge: it needs both a
// name and a value.
func (r SensorReading) Observable() bool {
	return strings.TrimSpace(r.Name) != "" && r.Value != nil
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

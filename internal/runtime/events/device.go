package events

import (
	"strings"

	"github.com/google/uuid"
)

const (
	legacyFirmwareVersion = "legacy-1.0"
	legacyDefaultModel    = "legacy-sensor"
	legacyDefaultStatus   = "inactive"
)

// Device is the registration document accepted by the device management API.
type Device struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Model           string     `json:"model"`
	FirmwareVersion string     `json:"firmware_version"`
	Status          string     `json:"status"`
	RoomID          *uuid.UUID `json:"room_id,omitempty"`
	HomeID          *uuid.UUID `json:"home_id,omitempty"`
	ActivationCode  *string    `json:"activation_code,omitempty"`
}

// DeviceFromLegacySensor maps a legacy sensor onto a new device with a fresh id.
func DeviceFromLegacySensor(s Sensor) Device {
	return Device{
		ID:              uuid.New(),
		Name:            s.Name,
		Type:            s.Type,
		Model:           firstNonEmpty(s.Unit, s.Location, legacyDefaultModel),
		FirmwareVersion: legacyFirmwareVersion,
		Status:          firstNonEmpty(s.Status, legacyDefaultStatus),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

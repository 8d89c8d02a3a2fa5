package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/drblury/eventrelay/internal/runtime/jsoncodec"
)

// StepEncoding controls how the steps field of an autoCommand payload is read.
type StepEncoding int

const (
	// StepsStrict accepts a JSON array, or a string that holds a JSON array.
	StepsStrict StepEncoding = iota
	// StepsLegacyQuotes additionally rewrites single quotes to double quotes
	// inside the string form before parsing.
	StepsLegacyQuotes
)

// ErrStepsMissing is returned when an autoCommand carries no steps field.
var ErrStepsMissing = errors.New("events: scenario has no steps field")

// AutomationStep is one action of an automation scenario. Order is advisory.
type AutomationStep struct {
	Order    int       `json:"order"`
	Action   string    `json:"action"`
	DeviceID DeviceRef `json:"deviceId"`
	Type     string    `json:"type"`
}

// Scenario is the decoded steps list of an autoCommand.
type Scenario struct {
	Steps []AutomationStep
}

// ParseScenario extracts and decodes the steps field of an autoCommand payload.
func ParseScenario(payload []byte, enc StepEncoding) (Scenario, error) {
	var envelope struct {
		Steps json.RawMessage `json:"steps"`
	}
	if err := jsoncodec.Unmarshal(payload, &envelope); err != nil {
		return Scenario{}, fmt.Errorf("decode autoCommand: %w", err)
	}
	raw := bytes.TrimSpace(envelope.Steps)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Scenario{}, ErrStepsMissing
	}

	if raw[0] == '"' {
		var encoded string
		if err := jsoncodec.Unmarshal(raw, &encoded); err != nil {
			return Scenario{}, fmt.Errorf("decode steps string: %w", err)
		}
		if enc == StepsLegacyQuotes {
			encoded = strings.ReplaceAll(encoded, "'", `"`)
		}
		raw = []byte(encoded)
	}

	var steps []AutomationStep
	if err := jsoncodec.Unmarshal(raw, &steps); err != nil {
		return Scenario{}, fmt.Errorf("decode steps: %w", err)
	}
	return Scenario{Steps: steps}, nil
}

// Ordered returns the steps sorted by Order, keeping arrival order for ties.
func (s Scenario) Ordered() []AutomationStep {
	out := slices.Clone(s.Steps)
	slices.SortStableFunc(out, func(a, b AutomationStep) int {
		return a.Order - b.Order
	})
	return out
}

// DeviceRef is a device identifier that producers send either as a string or
// as a bare number.
type DeviceRef string

func (d *DeviceRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := jsoncodec.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DeviceRef(s)
		return nil
	}
	var n json.Number
	if err := jsoncodec.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("deviceId: %w", err)
	}
	*d = DeviceRef(n.String())
	return nil
}

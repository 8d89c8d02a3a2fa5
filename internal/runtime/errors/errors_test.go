package errors

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrPublisherRequired", ErrPublisherRequired, "eventrelay: publisher is required"},
		{"ErrSubscriberRequired", ErrSubscriberRequired, "eventrelay: subscriber is required"},
		{"ErrTopicRequired", ErrTopicRequired, "eventrelay: topic is required"},
		{"ErrUnknownTopic", ErrUnknownTopic, "eventrelay: unknown topic"},
		{"ErrInvalidPayload", ErrInvalidPayload, "eventrelay: payload is not valid JSON"},
		{"ErrSinkRequired", ErrSinkRequired, "eventrelay: event log sink is required"},
		{"ErrRegistryRequired", ErrRegistryRequired, "eventrelay: gauge registry is required"},
		{"ErrRegistrarRequired", ErrRegistrarRequired, "eventrelay: device registrar is required"},
		{"ErrConfigRequired", ErrConfigRequired, "eventrelay: configuration is required"},
		{"ErrLoggerRequired", ErrLoggerRequired, "eventrelay: logger is required"},
		{"ErrTopicNotReady", ErrTopicNotReady, "eventrelay: topic has no partitions"},
		{"ErrProducerClosed", ErrProducerClosed, "eventrelay: producer is closed"},
		{"ErrSinkClosed", ErrSinkClosed, "eventrelay: event log sink is closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	want := "eventrelay: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if unwrapped := err.Unwrap(); unwrapped != inner {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, inner)
	}
}

func TestNewConfigValidationError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if err := NewConfigValidationError(nil); err != nil {
			t.Errorf("NewConfigValidationError(nil) = %v, want nil", err)
		}
	})

	t.Run("errors.Is works with wrapped error", func(t *testing.T) {
		inner := errors.New("specific error")
		err := NewConfigValidationError(inner)

		var cfgErr ConfigValidationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigValidationError, got %T", err)
		}
		if !errors.Is(err, inner) {
			t.Error("errors.Is should match wrapped error")
		}
	})
}

func TestProvisioningError(t *testing.T) {
	err := &ProvisioningError{Topic: "sensorData", Attempts: 10, Err: ErrTopicNotReady}

	want := `eventrelay: provisioning topic "sensorData" failed after 10 attempt(s): eventrelay: topic has no partitions`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrTopicNotReady) {
		t.Error("errors.Is should match ErrTopicNotReady")
	}

	var wrapped error = err
	var provErr *ProvisioningError
	if !errors.As(wrapped, &provErr) || provErr.Topic != "sensorData" {
		t.Errorf("errors.As failed: %v", provErr)
	}
}

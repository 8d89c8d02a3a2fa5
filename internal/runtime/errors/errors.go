package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrPublisherRequired  = sterrors.New("eventrelay: publisher is required")
	ErrSubscriberRequired = sterrors.New("eventrelay: subscriber is required")
	ErrTopicRequired      = sterrors.New("eventrelay: topic is required")
	ErrUnknownTopic       = sterrors.New("eventrelay: unknown topic")
	ErrInvalidPayload     = sterrors.New("eventrelay: payload is not valid JSON")
	ErrSinkRequired       = sterrors.New("eventrelay: event log sink is required")
	ErrRegistryRequired   = sterrors.New("eventrelay: gauge registry is required")
	ErrRegistrarRequired  = sterrors.New("eventrelay: device registrar is required")
	ErrConfigRequired     = sterrors.New("eventrelay: configuration is required")
	ErrLoggerRequired     = sterrors.New("eventrelay: logger is required")
	ErrTopicNotReady      = sterrors.New("eventrelay: topic has no partitions")
	ErrProducerClosed     = sterrors.New("eventrelay: producer is closed")
	ErrSinkClosed         = sterrors.New("eventrelay: event log sink is closed")
)

// ConfigValidationError reports a configuration that failed Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "eventrelay: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// ProvisioningError is returned when a topic could not be made ready. It is
// always fatal for the caller.
type ProvisioningError struct {
	Topic    string
	Attempts int
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("eventrelay: provisioning topic %q failed after %d attempt(s): %v", e.Topic, e.Attempts, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

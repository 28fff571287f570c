package automation

import "errors"

var (
	// ErrDuplicateEvent marks a redelivered event. Callers drop it silently:
	// no automation executions, no log rows, not an error to the sender.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrStaleEvent marks an event older than the configured maximum age.
	ErrStaleEvent = errors.New("stale event")
)

// ConfigurationError reports a broken integration or automation setup
// (missing webhook URL, unknown provider). It is surfaced to the caller of
// the affected operation and never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

package dbrouter

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every *ConfigurationError with errors.Is.
var ErrConfiguration = errors.New("routing configuration error")

// ConfigurationError reports a registry that cannot serve a target: a
// target with no registered pool, or a registry without a usable default.
// It indicates a startup misconfiguration and is never retried.
type ConfigurationError struct {
	Target Target
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("routing configuration: %s", e.Reason)
	}
	return fmt.Sprintf("routing configuration: target %q: %s", e.Target, e.Reason)
}

// Is reports whether target is ErrConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

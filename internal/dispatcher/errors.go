package dispatcher

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField       = errors.New("missing required field")
	ErrInvalidConfigType  = errors.New("invalid config type")
	ErrInvalidDuration    = errors.New("duration must be positive")
	ErrUnrecognizedPolicy = errors.New("unrecognized debounce type")
	ErrUnknownChannel     = errors.New("channel not registered")
	ErrDisposed           = errors.New("dispatcher disposed")
)

// ConfigError reports a missing or malformed configuration shape
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("dispatcher config: %v", e.Err)
	}
	return fmt.Sprintf("dispatcher config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// PolicyError reports a debounce type that matches none of the known policies
type PolicyError struct {
	Type string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnrecognizedPolicy, e.Type)
}

func (e *PolicyError) Unwrap() error {
	return ErrUnrecognizedPolicy
}

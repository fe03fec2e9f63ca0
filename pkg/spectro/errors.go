package spectro

import (
	"errors"
	"fmt"
)

// ErrDeviceNotOpen is returned by Configure when no connection exists and
// none could be established. The requested fields are still recorded so the
// caller's intent is not lost.
var ErrDeviceNotOpen = errors.New("spectrometer is not open")

// ConnectionError reports a failed open during Start. It is recoverable: the
// caller's acquisition loop is expected to catch it and retry on the next
// cycle.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "failed to connect to spectrometer"
	}
	return fmt.Sprintf("failed to connect to spectrometer: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConfigValueError reports a supplied value that could not be converted or
// applied to a specific named field.
type ConfigValueError struct {
	Field string
	Value any
	Err   error
}

func (e *ConfigValueError) Error() string {
	return fmt.Sprintf("invalid value %v for field %q: %v", e.Value, e.Field, e.Err)
}

func (e *ConfigValueError) Unwrap() error { return e.Err }

// UnsupportedModeError reports an acquisition or metric request that
// references a mode outside the supported set.
type UnsupportedModeError struct {
	Mode string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("unsupported acquisition mode: %q", e.Mode)
}

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerate marks a measurement that could not be computed from the
	// pixel data, e.g. a profile with no sample above half its maximum.
	ErrDegenerate = errors.New("degenerate measurement")

	// ErrConfigurationMismatch marks inputs that break a configuration
	// invariant: unequal lateral pitch or an out-of-range axial index.
	ErrConfigurationMismatch = errors.New("configuration mismatch")

	// ErrBackgroundRegionInvalid marks a background region with no usable samples.
	ErrBackgroundRegionInvalid = errors.New("invalid background region")
)

// ConfigError attaches a configuration's identity to a failure.
type ConfigError struct {
	Name string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration %q: %v", e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

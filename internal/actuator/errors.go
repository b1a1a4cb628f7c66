package actuator

import "errors"

var (
	// ErrInvalidConfig is returned when a family needs a configuration
	// reference that is missing, or the configured type is unknown.
	ErrInvalidConfig = errors.New("actuator: invalid configuration")

	// ErrNoFamily is returned in auto mode when no family matches the
	// entity's attributes yet.
	ErrNoFamily = errors.New("actuator: no matching device family")

	// ErrUnavailable is returned when writing to a valve that has no family.
	ErrUnavailable = errors.New("actuator: unavailable")
)

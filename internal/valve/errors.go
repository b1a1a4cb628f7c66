package valve

import "errors"

var (
	// ErrNotFound is returned when a controller ID is not registered.
	ErrNotFound = errors.New("valve: not found")

	// ErrDuplicate is returned when registering a controller ID twice.
	ErrDuplicate = errors.New("valve: duplicate id")

	// ErrInvalidPosition is returned for manual positions outside 0..100.
	ErrInvalidPosition = errors.New("valve: position out of range")
)

package store

import "errors"

// ErrNotFound is returned when no state was saved for a valve.
var ErrNotFound = errors.New("store: valve state not found")

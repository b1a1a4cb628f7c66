package queue

import (
	"errors"
	"fmt"
)

// ErrPanic wraps a panic raised by an actuator during dispatch.
var ErrPanic = errors.New("queue: actuator panicked")

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPanic, e.value)
}

func (e *panicError) Unwrap() error {
	return ErrPanic
}

package command

import "errors"

var (
	// ErrNotConnected is returned when no publisher is configured.
	ErrNotConnected = errors.New("command: not connected")

	// ErrRejected is returned when a bridge acknowledges with failed or timeout.
	ErrRejected = errors.New("command: rejected by bridge")

	// ErrAckTimeout is returned when no acknowledgement arrives in time.
	ErrAckTimeout = errors.New("command: acknowledgement timeout")
)

package command

import "time"

// Message is published to a protocol bridge to execute a device command.
// Topic: graylogic/command/{protocol}/{device}
type Message struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the bridge-side entity the command targets.
	DeviceID string `json:"device_id"`

	// Command is the command name, e.g. "set_position", "put_paramset",
	// "set_hvac_mode", "set_temperature", "set_value".
	Command string `json:"command"`

	// Parameters holds command-specific values.
	// Examples:
	//   {"position": 40} for set_position
	//   {"hvac_mode": "heat"} for set_hvac_mode
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source names the component that issued the command.
	Source string `json:"source"`
}

// AckStatus is the acknowledgement status reported by a bridge.
type AckStatus string

const (
	// AckAccepted means the command was sent to the device.
	AckAccepted AckStatus = "accepted"

	// AckQueued means the bridge holds the command until the device is reachable.
	AckQueued AckStatus = "queued"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout means the device did not answer in time.
	AckTimeout AckStatus = "timeout"
)

// Succeeded reports whether the status counts as a delivered command.
func (s AckStatus) Succeeded() bool {
	return s == AckAccepted || s == AckQueued
}

// AckMessage is published by a bridge in reply to a Message.
// Topic: graylogic/ack/{protocol}/{device}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address,omitempty"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError carries the bridge's failure details.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Retries int    `json:"retries,omitempty"`
}

package entity

import "errors"

var (
	// ErrInvalidPayload is returned when an MQTT state payload cannot be decoded.
	ErrInvalidPayload = errors.New("entity: invalid payload")

	// ErrInvalidTopic is returned when a state topic has an unexpected shape.
	ErrInvalidTopic = errors.New("entity: invalid topic")
)

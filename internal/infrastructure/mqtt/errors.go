package mqtt

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Errors returned by the client. Match with errors.Is.
var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidQoS       = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic     = errors.New("mqtt: empty topic")
)

// await waits for a paho token and wraps a timeout or broker error in kind.
func await(token pahomqtt.Token, timeout time.Duration, kind error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no response after %v", kind, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

// checkTopic validates the arguments shared by Publish and Subscribe.
func checkTopic(topic string, qos byte) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return nil
}

package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps outgoing payloads. Valve commands and diagnostics
// are a few hundred bytes.
const maxPayloadSize = 256 << 10

// Publish sends payload to topic. Commands to bridges are sent with
// retained=false; diagnostics topics are retained so a dashboard that
// subscribes later sees the last value.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// PublishJSON marshals v and publishes it with the configured QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), retained)
}

package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/mqtt"
)

// ProtocolZigbee2MQTT tags entities learned from zigbee2mqtt.
const ProtocolZigbee2MQTT = "zigbee2mqtt"

// Subscriber is the part of the MQTT client the ingester needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// stateMessage is the payload bridges publish on graylogic/state/{protocol}/{entity}.
type stateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address"`
}

// HandleBridgeState ingests a bridge StateMessage. The entity ID is the
// message device_id, or the last topic segment when that is empty.
func (s *Store) HandleBridgeState(topic string, payload []byte) error {
	category, protocol, id, ok := mqtt.ParseBridgeTopic(topic)
	if !ok || category != "state" {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	var msg stateMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	if msg.DeviceID != "" {
		id = msg.DeviceID
	}
	if msg.Protocol != "" {
		protocol = msg.Protocol
	}

	s.Update(id, protocol, msg.State)
	s.logger.Debug("entity state updated", "entity", id, "protocol", protocol)
	return nil
}

// Zigbee2MQTTHandler returns a handler for {base}/{friendly_name} topics.
// Bridge housekeeping topics under {base}/bridge are ignored.
func (s *Store) Zigbee2MQTTHandler(base string) mqtt.MessageHandler {
	prefix := base + "/"
	return func(topic string, payload []byte) error {
		name, ok := strings.CutPrefix(topic, prefix)
		if !ok || name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
		}
		if name == "bridge" {
			return nil
		}

		var attrs map[string]any
		if err := decode(payload, &attrs); err != nil {
			return err
		}
		s.Update(name, ProtocolZigbee2MQTT, attrs)
		return nil
	}
}

// SubscribeOptions selects the ingestion sources.
type SubscribeOptions struct {
	Bridges         bool
	Zigbee2MQTT     bool
	Zigbee2MQTTBase string
}

// Subscribe wires the store to the configured MQTT sources.
func (s *Store) Subscribe(sub Subscriber, opts SubscribeOptions) error {
	topics := mqtt.Topics{}
	if opts.Bridges {
		if err := sub.Subscribe(topics.AllBridgeStates(), 1, s.HandleBridgeState); err != nil {
			return fmt.Errorf("subscribing to bridge state: %w", err)
		}
	}
	if opts.Zigbee2MQTT {
		base := opts.Zigbee2MQTTBase
		if err := sub.Subscribe(topics.Zigbee2MQTTAll(base), 0, s.Zigbee2MQTTHandler(base)); err != nil {
			return fmt.Errorf("subscribing to zigbee2mqtt: %w", err)
		}
	}
	return nil
}

func decode(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{entity}
// shared with every Gray Logic protocol bridge.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixValves is the base for topics owned by this service.
	TopicPrefixValves = "graylogic/core/valves"
)

// Topics provides builders for the MQTT topics this service reads and writes.
//
//	topics := mqtt.Topics{}
//	topics.BridgeCommand("homematic", "bedroom_trv")
//	// Returns: "graylogic/command/homematic/bedroom_trv"
type Topics struct{}

// BridgeState returns the topic a bridge publishes entity state on.
//
// Example: graylogic/state/knx/bathroom-valve
func (Topics) BridgeState(protocol, entity string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, entity)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: graylogic/command/homematic/bedroom_trv
func (Topics) BridgeCommand(protocol, entity string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, entity)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: graylogic/ack/homematic/bedroom_trv
func (Topics) BridgeAck(protocol, entity string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, entity)
}

// AllBridgeStates returns a pattern matching all bridge state updates.
//
// Pattern: graylogic/state/+/+
func (Topics) AllBridgeStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefixBridge)
}

// AllBridgeAcks returns a pattern matching all bridge acknowledgements.
//
// Pattern: graylogic/ack/+/+
func (Topics) AllBridgeAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefixBridge)
}

// ServiceStatus is the retained online/offline topic of this service.
//
// Example: graylogic/core/valves/status
func (Topics) ServiceStatus() string {
	return TopicPrefixValves + "/status"
}

// ValveState returns the retained diagnostics topic for one controller.
//
// Example: graylogic/core/valves/kitchen/state
func (Topics) ValveState(valveID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixValves, valveID)
}

// QueueDepth returns the retained actuation queue depth topic.
//
// Example: graylogic/core/valves/queue
func (Topics) QueueDepth() string {
	return TopicPrefixValves + "/queue"
}

// Zigbee2MQTTDevice returns the topic zigbee2mqtt publishes device state on.
//
// Example: zigbee2mqtt/kitchen_trv
func (Topics) Zigbee2MQTTDevice(base, name string) string {
	return base + "/" + name
}

// Zigbee2MQTTAll returns a pattern matching every zigbee2mqtt device state.
// Bridge housekeeping topics (base/bridge/...) also match and must be filtered
// by the subscriber.
//
// Pattern: zigbee2mqtt/+
func (Topics) Zigbee2MQTTAll(base string) string {
	return base + "/+"
}

// Zigbee2MQTTSet returns the set topic for a device, optionally narrowed to
// a single attribute.
//
// Example: zigbee2mqtt/kitchen_trv/set/eurotronic_valve_position
func (Topics) Zigbee2MQTTSet(base, name string, attribute ...string) string {
	t := base + "/" + name + "/set"
	if len(attribute) > 0 && attribute[0] != "" {
		t += "/" + attribute[0]
	}
	return t
}

// Zigbee2MQTTGet returns the topic that asks zigbee2mqtt to poll a device.
//
// Example: zigbee2mqtt/kitchen_trv/get
func (Topics) Zigbee2MQTTGet(base, name string) string {
	return base + "/" + name + "/get"
}

// ParseBridgeTopic splits graylogic/{category}/{protocol}/{entity}.
// ok is false when the topic does not follow that shape.
func ParseBridgeTopic(topic string) (category, protocol, entity string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefixBridge {
		return "", "", "", false
	}
	if parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

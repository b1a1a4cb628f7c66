package actuator

import (
	"fmt"
	"strings"
)

// Device family identifiers, matching the configuration "type" values.
const (
	TypeAuto             = "auto"
	TypeEurotronic       = "eurotronic"
	TypeHomematic        = "homematic"
	TypeHomematicIPLocal = "homematicip_local"
	TypeBosch            = "bosch"
	TypeShelly           = "shelly"
	TypeKNX              = "knx"
)

// Config describes one valve actuator.
type Config struct {
	// Name is the actuator entity ID. It is also the queue key.
	Name string

	// Type is a family identifier or TypeAuto.
	Type string

	// ValvePosition is the entity reporting the valve position, required
	// by homematicip_local and shelly.
	ValvePosition string

	// HeatingSwitch is the entity whose "on" state selects the homematic
	// normalized setpoint.
	HeatingSwitch string

	// Zigbee2MQTTBase is the zigbee2mqtt base topic.
	Zigbee2MQTTBase string
}

// Select picks the device family for an actuator from its configuration
// and the attributes and protocol the entity currently reports.
//
// Returns:
//   - the family identifier
//   - ErrInvalidConfig for an unknown type or a missing required reference
//   - ErrNoFamily when auto mode cannot recognise the entity yet
func Select(cfg Config, attrs map[string]any, protocol string) (string, error) {
	typ := cfg.Type
	if typ == "" {
		typ = TypeAuto
	}

	if typ == TypeAuto {
		typ = probe(attrs, protocol)
		if typ == "" {
			return "", fmt.Errorf("%w: %s", ErrNoFamily, cfg.Name)
		}
	}

	switch typ {
	case TypeEurotronic, TypeHomematic, TypeBosch, TypeKNX:
		return typ, nil
	case TypeHomematicIPLocal, TypeShelly:
		if cfg.ValvePosition == "" {
			return "", fmt.Errorf("%w: %s: %s requires valve_position", ErrInvalidConfig, cfg.Name, typ)
		}
		return typ, nil
	default:
		return "", fmt.Errorf("%w: %s: unknown type %q", ErrInvalidConfig, cfg.Name, typ)
	}
}

func probe(attrs map[string]any, protocol string) string {
	if v, ok := attrs["eurotronic_system_mode"]; ok && v != nil {
		return TypeEurotronic
	}
	if iface, _ := attrs["interface"].(string); iface == "rf" {
		return TypeHomematic
	}
	if id, _ := attrs["interface_id"].(string); strings.HasSuffix(id, "-BidCos-RF") {
		return TypeHomematicIPLocal
	}
	if protocol == TypeKNX {
		return TypeKNX
	}
	return ""
}

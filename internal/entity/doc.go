// Package entity keeps the latest known state of every device entity the
// valve controllers read from.
//
// State arrives over MQTT from two sources:
//   - Gray Logic protocol bridges publish StateMessage JSON on
//     graylogic/state/{protocol}/{entity}
//   - zigbee2mqtt publishes flat device JSON on {base}/{friendly_name}
//
// Each entity has a primary state string (for example "heat", "on", or a
// numeric setpoint), a set of attributes, and the time its primary state
// last changed.
//
// # Reading
//
// Controllers read through an Entity handle, which falls back to the last
// seen value when an attribute disappears from a later update:
//
//	store := entity.NewStore()
//	thermostat := entity.NewSensor(store, "living_room_thermostat")
//	if temp, ok := thermostat.Value(); ok {
//	    // use temp
//	}
//
// # Thread Safety
//
// Store and Entity are safe for concurrent use.
package entity

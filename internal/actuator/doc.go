// Package actuator adapts physical radiator valves and room thermostats to
// the ports the valve controller consumes.
//
// Each supported device family knows where its valve reads temperature and
// position from, how a position write is transported, and what "normal"
// device state looks like:
//
//	eurotronic         zigbee2mqtt, valve position via eurotronic_valve_position
//	homematic          bridge put_paramset on the device address
//	homematicip_local  bridge put_paramset on the device id
//	bosch              zigbee2mqtt, pi_heating_demand
//	shelly             bridge set_value on a separate position entity
//	knx                bridge set_position
//
// A Proxy picks the family once, either from the configured type or by
// probing the entity's attributes in "auto" mode, and caches the choice.
//
// # Errors
//
// ErrInvalidConfig is permanent: the valve stays idle until the
// configuration is fixed. ErrNoFamily means the entity has not reported
// enough state to be recognised yet and selection is retried.
package actuator

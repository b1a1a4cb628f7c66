package entity

// Sensor reads a room thermostat. It satisfies the valve controller's
// sensor port.
type Sensor struct {
	*Entity
}

// NewSensor returns a sensor reading entity id.
func NewSensor(store *Store, id string) *Sensor {
	return &Sensor{Entity: NewEntity(store, id)}
}

// Value returns the measured room temperature, taken from
// current_temperature or, failing that, temperature.
func (s *Sensor) Value() (float64, bool) {
	if v, ok := s.Float("current_temperature"); ok {
		return v, true
	}
	return s.Float("temperature")
}

// Available reports whether the entity exists and has a reading.
func (s *Sensor) Available() bool {
	if !s.Exists() {
		return false
	}
	_, ok := s.Value()
	return ok
}

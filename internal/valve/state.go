package valve

import (
	"math"
	"time"

	"github.com/nerrad567/gray-logic-valves/internal/calibration"
)

// State is what survives a restart.
type State struct {
	Position           float64             `json:"position"`
	HeatingUntilTarget bool                `json:"heating_until_target"`
	Calibration        []calibration.Keyed `json:"calibration"`
}

// Snapshot returns the persistable state. Calibration values are rounded.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	entries := c.cal.Entries()
	for i := range entries {
		entries[i].Entry = entries[i].Entry.Rounded()
	}
	return State{
		Position:           c.position,
		HeatingUntilTarget: c.heatingUntilTarget,
		Calibration:        entries,
	}
}

// Restore loads persisted state. The last known device position is taken
// to be the commanded one.
func (c *Controller) Restore(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.position = s.Position
	c.rawPosition = math.Ceil(s.Position)
	c.heatingUntilTarget = s.HeatingUntilTarget
	for _, k := range s.Calibration {
		c.cal.Set(k.Target, k.Entry)
	}
	c.logger.Info("controller state restored", "valve", c.cfg.ID,
		"position", s.Position, "calibration_entries", len(s.Calibration))
}

// Diagnostics is a read-only view of a controller after a tick.
type Diagnostics struct {
	ID           string `json:"id"`
	Actuator     string `json:"actuator"`
	ActuatorType string `json:"actuator_type,omitempty"`
	Regime       string `json:"regime"`

	// Updated is false until a tick computed the error terms.
	Updated bool `json:"updated"`

	TargetTemperature float64 `json:"target_temperature"`
	SensorTemperature float64 `json:"sensor_temperature"`
	ValveTemperature  float64 `json:"valve_temperature"`
	FeltTemp          float64 `json:"felt_temp"`
	AdjustedFeltTemp  float64 `json:"adjusted_felt_temp"`
	Error             float64 `json:"error"`
	ErrorExp          float64 `json:"error_exp"`
	RealError         float64 `json:"real_error"`
	FeltTempDelta     float64 `json:"felt_temp_delta"`
	SweetSpot         float64 `json:"sweet_spot"`
	Position          float64 `json:"position"`
	RawPosition       float64 `json:"raw_position"`
	ThermostatSlope   float64 `json:"thermostat_slope"`
	ValveSlope        float64 `json:"valve_slope"`

	HeatingUntilTarget bool `json:"heating_until_target"`

	BoostSavedPosition    *float64   `json:"boost_saved_position,omitempty"`
	WindowSavedPosition   *float64   `json:"window_saved_position,omitempty"`
	WindowOpenUntil       *time.Time `json:"window_open_until,omitempty"`
	SweetSpotBlockedUntil time.Time  `json:"sweet_spot_blocked_until"`

	AdjustInterval time.Duration `json:"adjust_interval"`
	NextAdjustAt   time.Time     `json:"next_adjust_at"`
	LastTickAt     time.Time     `json:"last_tick_at"`

	Calibration []calibration.Keyed `json:"calibration"`
}

// typed is implemented by actuators that know their device family.
type typed interface {
	Type() string
}

// Diagnostics returns the current diagnostics.
func (c *Controller) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diagnosticsLocked()
}

func (c *Controller) diagnosticsLocked() Diagnostics {
	entry := c.cal.Current(c.target)
	d := Diagnostics{
		ID:                    c.cfg.ID,
		Actuator:              c.actuator.Name(),
		Regime:                c.regime,
		Updated:               c.updated,
		TargetTemperature:     c.target,
		SensorTemperature:     c.sensorValue,
		ValveTemperature:      c.actuatorValue,
		FeltTemp:              round(c.feltTemp, 3),
		AdjustedFeltTemp:      c.adjustedFelt,
		Error:                 round(c.err, 3),
		ErrorExp:              round(c.errExp, 3),
		RealError:             c.realError,
		FeltTempDelta:         round(entry.FeltTempDelta, 3),
		SweetSpot:             round(entry.SweetSpot, 3),
		Position:              round(c.position, 2),
		RawPosition:           round(c.rawPosition, 2),
		ThermostatSlope:       round(c.thermoHist.Slope(), 3),
		ValveSlope:            round(c.valveHist.Slope(), 3),
		HeatingUntilTarget:    c.heatingUntilTarget,
		SweetSpotBlockedUntil: c.sweetSpotBlockedUntil,
		AdjustInterval:        c.interval,
		NextAdjustAt:          c.nextAdjustAt,
		LastTickAt:            c.lastTickAt,
		Calibration:           c.cal.Entries(),
	}
	if t, ok := c.actuator.(typed); ok {
		d.ActuatorType = t.Type()
	}
	if c.boostActive {
		saved := c.boostSaved
		d.BoostSavedPosition = &saved
	}
	if c.windowActive {
		saved := c.windowSaved
		until := c.windowOpenUntil
		d.WindowSavedPosition = &saved
		d.WindowOpenUntil = &until
	}
	return d
}

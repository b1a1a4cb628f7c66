package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-valves/internal/actuator"
	"github.com/nerrad567/gray-logic-valves/internal/entity"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-valves/internal/queue"
	"github.com/nerrad567/gray-logic-valves/internal/store"
	"github.com/nerrad567/gray-logic-valves/internal/valve"
)

// stateStore is the persistence used by the run command.
type stateStore interface {
	valve.Persister
	Load(ctx context.Context, id string) (valve.State, error)
}

// queueOptions translates the queue section of the configuration.
func queueOptions(cfg *config.Config, entities *entity.Store, log *logging.Logger) (queue.Options, error) {
	qc := cfg.Valves.Queue
	opts := queue.Options{
		Interval:        config.Seconds(qc.Interval),
		DispatchTimeout: config.Seconds(qc.DispatchTimeout),
		DutyCycle:       dutyCycleReader(entities, qc.DutyCycle),
		DutyCycleMax:    float64(qc.DutyCycle.Max),
		Logger:          log,
	}

	if qc.Blackout.Enabled {
		weekday, err := config.ParseWeekday(qc.Blackout.Weekday)
		if err != nil {
			return queue.Options{}, fmt.Errorf("blackout weekday: %w", err)
		}
		start, err := config.ParseClock(qc.Blackout.Start)
		if err != nil {
			return queue.Options{}, fmt.Errorf("blackout start: %w", err)
		}
		end, err := config.ParseClock(qc.Blackout.End)
		if err != nil {
			return queue.Options{}, fmt.Errorf("blackout end: %w", err)
		}
		opts.Blackout = queue.Blackout{
			Enabled:  true,
			Weekday:  weekday,
			Start:    start,
			End:      end,
			Location: cfg.Location(),
		}
	}
	return opts, nil
}

// dutyCycleReader returns nil when no duty cycle entity is configured.
func dutyCycleReader(entities *entity.Store, dc config.DutyCycleConfig) func() (float64, bool) {
	if dc.Entity == "" {
		return nil
	}
	ent := entity.NewEntity(entities, dc.Entity)
	return func() (float64, bool) {
		return ent.Float(dc.Attribute)
	}
}

func actuatorConfig(cfg *config.Config, v config.ValveConfig) actuator.Config {
	return actuator.Config{
		Name:            v.Actuator,
		Type:            v.Type,
		ValvePosition:   v.ValvePosition,
		HeatingSwitch:   cfg.Valves.HeatingSwitchEntity,
		Zigbee2MQTTBase: cfg.Sources.Zigbee2MQTT.BaseTopic,
	}
}

func controllerConfig(cfg *config.Config, v config.ValveConfig) valve.Config {
	return valve.Config{
		ID:                v.ID,
		Peer:              v.Peer,
		SetpointInput:     v.SetpointInput,
		WindowSensors:     []string(v.WindowSensors),
		TemperatureAdjust: cfg.Valves.TemperatureAdjustEntity,
		MinPosition:       v.MinPosition,
		MaxPosition:       v.MaxPosition,
		PositionFactor:    v.PositionFactor,
		AdjustInterval:    config.Seconds(cfg.Valves.AdjustInterval),
		AdjustJitter:      config.Seconds(cfg.Valves.AdjustJitter),
		ThermostatInertia: float64(v.ThermostatInertia),
		ValveInertia:      float64(v.ValveInertia),
		GlobalCalibration: cfg.Valves.CalibrationMode == config.CalibrationGlobal,
	}
}

// controllerDeps carries the shared collaborators every controller gets.
type controllerDeps struct {
	entities *entity.Store
	commands actuator.Commander
	queue    *queue.Queue
	states   valve.Persister
	log      *logging.Logger
}

// buildRegistry creates one controller per configured valve.
func buildRegistry(cfg *config.Config, deps controllerDeps) (*valve.Registry, error) {
	reg := valve.NewRegistry()
	base := cfg.Sources.Zigbee2MQTT.BaseTopic

	for _, v := range cfg.Valves.Entities {
		vlog := deps.log.Component("valve").With("valve", v.ID)

		proxy := actuator.NewProxy(actuatorConfig(cfg, v), deps.entities, deps.commands, vlog)
		thermostat := actuator.NewThermostat(deps.entities, v.Thermostat, deps.commands, base, vlog)

		c := valve.New(controllerConfig(cfg, v), valve.Deps{
			Sensor:    thermostat,
			Actuator:  proxy,
			Queue:     deps.queue,
			Entities:  deps.entities,
			Persister: deps.states,
			Logger:    vlog,
		})
		if err := reg.Add(c); err != nil {
			return nil, fmt.Errorf("adding valve %s: %w", v.ID, err)
		}
	}
	return reg, nil
}

// restoreState loads persisted state into every controller. A valve with
// no saved state starts from defaults.
func restoreState(ctx context.Context, reg *valve.Registry, states stateStore, log *logging.Logger) error {
	for _, c := range reg.Controllers() {
		s, err := states.Load(ctx, c.ID())
		if errors.Is(err, store.ErrNotFound) {
			log.Info("no saved state, starting fresh", "valve", c.ID())
			continue
		}
		if err != nil {
			return fmt.Errorf("loading state for %s: %w", c.ID(), err)
		}
		c.Restore(s)
	}
	return nil
}

// saveState persists every controller. Failures are logged so one bad
// valve does not stop the others from being saved.
func saveState(ctx context.Context, reg *valve.Registry, states valve.Persister, log *logging.Logger) int {
	saved := 0
	for _, c := range reg.Controllers() {
		if err := states.Save(ctx, c.ID(), c.Snapshot()); err != nil {
			log.Error("saving valve state", "valve", c.ID(), "error", err)
			continue
		}
		saved++
	}
	return saved
}

func valveSample(d valve.Diagnostics) influxdb.ValveSample {
	return influxdb.ValveSample{
		ValveID:       d.ID,
		Regime:        d.Regime,
		Target:        d.TargetTemperature,
		Sensor:        d.SensorTemperature,
		FeltTemp:      d.FeltTemp,
		Error:         d.Error,
		ErrorExp:      d.ErrorExp,
		RealError:     d.RealError,
		Position:      d.Position,
		RawPosition:   d.RawPosition,
		SweetSpot:     d.SweetSpot,
		FeltTempDelta: d.FeltTempDelta,
		Slope:         d.ThermostatSlope,
		Timestamp:     d.LastTickAt,
	}
}

func dispatchSample(r queue.Result) influxdb.DispatchSample {
	return influxdb.DispatchSample{
		Actuator:  r.Actuator,
		Value:     r.Value,
		Urgent:    r.Urgent,
		Succeeded: r.Err == nil,
	}
}

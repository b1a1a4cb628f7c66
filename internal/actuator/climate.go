package actuator

import (
	"context"

	"github.com/nerrad567/gray-logic-valves/internal/entity"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/mqtt"
)

// Commander sends device writes. *command.Dispatcher satisfies it.
type Commander interface {
	Send(ctx context.Context, protocol, deviceID, command string, params map[string]any) error
	PublishJSON(ctx context.Context, topic string, v any) error
}

// Logger is the logging interface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Bridge command names.
const (
	CommandSetHVACMode    = "set_hvac_mode"
	CommandSetTemperature = "set_temperature"
	CommandPutParamset    = "put_paramset"
	CommandSetValue       = "set_value"
	CommandSetPosition    = "set_position"
)

// climate writes HVAC mode and setpoint to a thermostat-like entity, over
// zigbee2mqtt when the entity came from there and as a bridge command
// otherwise.
type climate struct {
	ent    *entity.Entity
	cmd    Commander
	base   string
	logger Logger
}

func (c climate) zigbee() bool {
	return c.ent.Protocol() == entity.ProtocolZigbee2MQTT
}

func (c climate) protocol(fallback string) string {
	if p := c.ent.Protocol(); p != "" {
		return p
	}
	return fallback
}

func (c climate) setTopic(attribute ...string) string {
	return mqtt.Topics{}.Zigbee2MQTTSet(c.base, c.ent.ID(), attribute...)
}

func (c climate) setHVACMode(ctx context.Context, mode string) error {
	if c.zigbee() {
		return c.cmd.PublishJSON(ctx, c.setTopic(), map[string]any{"system_mode": mode})
	}
	return c.cmd.Send(ctx, c.protocol(""), c.ent.ID(), CommandSetHVACMode, map[string]any{"hvac_mode": mode})
}

func (c climate) setTargetTemp(ctx context.Context, temp float64) error {
	if c.zigbee() {
		return c.cmd.PublishJSON(ctx, c.setTopic(), map[string]any{"occupied_heating_setpoint": temp})
	}
	return c.cmd.Send(ctx, c.protocol(""), c.ent.ID(), CommandSetTemperature, map[string]any{"temperature": temp})
}

func (c climate) targetTemp() (float64, bool) {
	if v, ok := c.ent.Float("temperature"); ok {
		return v, true
	}
	return c.ent.Float("occupied_heating_setpoint")
}

// normalizeHVACMode switches the entity from one HVAC mode to another.
// It reports whether a write was issued.
func (c climate) normalizeHVACMode(ctx context.Context, from, to string) bool {
	state, ok := c.ent.State()
	if !ok || state != from {
		return false
	}
	if err := c.setHVACMode(ctx, to); err != nil {
		c.logger.Warn("normalizing hvac mode failed", "entity", c.ent.ID(), "error", err)
		return false
	}
	c.logger.Info("normalized hvac mode", "entity", c.ent.ID(), "mode", to)
	return true
}

// normalizeTargetTemp forces the device setpoint to temp.
func (c climate) normalizeTargetTemp(ctx context.Context, temp float64) bool {
	if current, ok := c.targetTemp(); ok && current == temp {
		return false
	}
	if err := c.setTargetTemp(ctx, temp); err != nil {
		c.logger.Warn("normalizing target temperature failed", "entity", c.ent.ID(), "error", err)
		return false
	}
	c.logger.Info("normalized target temperature", "entity", c.ent.ID(), "temperature", temp)
	return true
}

// Thermostat is a room thermostat: an entity.Sensor that can also be
// pushed back from "auto" into "heat" mode.
type Thermostat struct {
	*entity.Sensor
	climate climate
}

// NewThermostat returns a thermostat for entity id.
func NewThermostat(store *entity.Store, id string, cmd Commander, zigbeeBase string, logger Logger) *Thermostat {
	if logger == nil {
		logger = noopLogger{}
	}
	s := entity.NewSensor(store, id)
	return &Thermostat{
		Sensor:  s,
		climate: climate{ent: s.Entity, cmd: cmd, base: zigbeeBase, logger: logger},
	}
}

// NormalizeThermostat switches an "auto" thermostat to "heat" so the
// device schedule does not fight the controller.
func (t *Thermostat) NormalizeThermostat(ctx context.Context) bool {
	if !t.Available() {
		return false
	}
	return t.climate.normalizeHVACMode(ctx, "auto", "heat")
}

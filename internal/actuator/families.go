package actuator

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-valves/internal/entity"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/mqtt"
)

// Family is one device family's implementation of the actuator port.
type Family interface {
	Type() string
	Available() bool
	Value() (float64, bool)
	Position() (float64, bool)
	SetPosition(ctx context.Context, value int, urgent bool) error
	NormalizeState(ctx context.Context) bool
}

// Device setpoints held by the homematic families. The opening itself is
// capped through VALVE_MAXIMUM_POSITION.
const (
	homematicHeatingOnTarget  = 30.5
	homematicHeatingOffTarget = 4.5
)

// Eurotronic Spirit thresholds.
const (
	eurotronicTarget        = 30.0
	eurotronicFaultTarget   = 29.0
	eurotronicFaultTemp     = 5.0
	eurotronicMaxDemand     = 80.0
	eurotronicTRVModeManual = 1
	eurotronicTRVModeValve  = 2
)

func rxMode(urgent bool) string {
	if urgent {
		return "BURST"
	}
	return "WAKEUP"
}

// base holds what every family shares.
type base struct {
	cfg     Config
	ent     *entity.Entity
	store   *entity.Store
	cmd     Commander
	logger  Logger
	climate climate
	value   string
}

func newBase(cfg Config, ent *entity.Entity, store *entity.Store, cmd Commander, logger Logger, valueAttr string) base {
	return base{
		cfg:     cfg,
		ent:     ent,
		store:   store,
		cmd:     cmd,
		logger:  logger,
		climate: climate{ent: ent, cmd: cmd, base: cfg.Zigbee2MQTTBase, logger: logger},
		value:   valueAttr,
	}
}

func (b base) Value() (float64, bool) {
	return b.ent.Float(b.value)
}

func (b base) Available() bool {
	if !b.ent.Exists() {
		return false
	}
	_, ok := b.Value()
	return ok
}

func (b base) positionEntity() (float64, bool) {
	st, ok := b.store.Get(b.cfg.ValvePosition)
	if !ok {
		return 0, false
	}
	return entity.ToFloat(st.State)
}

func (b base) heatingOn() bool {
	if b.cfg.HeatingSwitch == "" {
		return true
	}
	st, ok := b.store.Get(b.cfg.HeatingSwitch)
	if !ok {
		b.logger.Warn("heating switch entity missing, assuming on", "entity", b.cfg.HeatingSwitch)
		return true
	}
	return st.State == "on"
}

func (b base) homematicNormalize(ctx context.Context) bool {
	if !b.Available() {
		return false
	}
	if b.climate.normalizeHVACMode(ctx, "auto", "heat") {
		return true
	}
	target := homematicHeatingOffTarget
	if b.heatingOn() {
		target = homematicHeatingOnTarget
	}
	return b.climate.normalizeTargetTemp(ctx, target)
}

type eurotronic struct{ base }

func (eurotronic) Type() string { return TypeEurotronic }

func (e eurotronic) Position() (float64, bool) {
	return e.ent.Float("pi_heating_demand")
}

func (e eurotronic) SetPosition(ctx context.Context, value int, _ bool) error {
	topic := mqtt.Topics{}.Zigbee2MQTTSet(e.cfg.Zigbee2MQTTBase, e.ent.ID(), "eurotronic_valve_position")
	return e.cmd.PublishJSON(ctx, topic, value*255/100)
}

func (e eurotronic) setTRVMode(ctx context.Context, mode int) {
	topic := mqtt.Topics{}.Zigbee2MQTTSet(e.cfg.Zigbee2MQTTBase, e.ent.ID(), "eurotronic_trv_mode")
	if err := e.cmd.PublishJSON(ctx, topic, mode); err != nil {
		e.logger.Warn("setting trv mode failed", "entity", e.ent.ID(), "error", err)
	}
}

func (e eurotronic) NormalizeState(ctx context.Context) bool {
	if !e.Available() {
		return false
	}
	res := e.climate.normalizeHVACMode(ctx, "heat", "auto")
	res = res || e.climate.normalizeTargetTemp(ctx, eurotronicTarget)

	// Poll, the device reports local temperature lazily.
	poll := mqtt.Topics{}.Zigbee2MQTTGet(e.cfg.Zigbee2MQTTBase, e.ent.ID())
	if err := e.cmd.PublishJSON(ctx, poll, map[string]string{"local_temperature": ""}); err != nil {
		e.logger.Warn("polling local temperature failed", "entity", e.ent.ID(), "error", err)
	}

	if v, _ := e.Value(); v < eurotronicFaultTemp {
		e.logger.Info("working around implausible device temperature", "entity", e.ent.ID(), "value", v)
		e.setTRVMode(ctx, eurotronicTRVModeValve)
		return e.climate.normalizeTargetTemp(ctx, eurotronicFaultTarget)
	}
	if demand, ok := e.Position(); ok && demand > eurotronicMaxDemand {
		e.setTRVMode(ctx, eurotronicTRVModeManual)
		e.logger.Info("heating demand too high, trv mode set to manual", "entity", e.ent.ID(), "demand", demand)
		return true
	}
	return res
}

type homematic struct{ base }

func (homematic) Type() string { return TypeHomematic }

func (h homematic) Position() (float64, bool) {
	return h.ent.Float("valve")
}

func (h homematic) SetPosition(ctx context.Context, value int, urgent bool) error {
	iface, _ := h.ent.String("interface")
	address, _ := h.ent.String("id")
	return h.cmd.Send(ctx, h.climate.protocol(TypeHomematic), h.ent.ID(), CommandPutParamset, map[string]any{
		"interface":    iface,
		"address":      address,
		"paramset_key": "MASTER",
		"paramset":     map[string]any{"VALVE_MAXIMUM_POSITION": value},
		"rx_mode":      rxMode(urgent),
	})
}

func (h homematic) NormalizeState(ctx context.Context) bool {
	return h.homematicNormalize(ctx)
}

type homematicIPLocal struct{ base }

func (homematicIPLocal) Type() string { return TypeHomematicIPLocal }

func (h homematicIPLocal) Position() (float64, bool) {
	return h.positionEntity()
}

func (h homematicIPLocal) SetPosition(ctx context.Context, value int, urgent bool) error {
	deviceID, ok := h.ent.String("device_id")
	if !ok || deviceID == "" {
		deviceID = h.ent.ID()
	}
	return h.cmd.Send(ctx, h.climate.protocol(TypeHomematicIPLocal), h.ent.ID(), CommandPutParamset, map[string]any{
		"device_id":    deviceID,
		"paramset_key": "MASTER",
		"paramset":     map[string]any{"VALVE_MAXIMUM_POSITION": value},
		"rx_mode":      rxMode(urgent),
	})
}

func (h homematicIPLocal) NormalizeState(ctx context.Context) bool {
	return h.homematicNormalize(ctx)
}

type bosch struct{ base }

func (bosch) Type() string { return TypeBosch }

func (b bosch) Position() (float64, bool) {
	return b.ent.Float("pi_heating_demand")
}

func (b bosch) SetPosition(ctx context.Context, value int, _ bool) error {
	topic := mqtt.Topics{}.Zigbee2MQTTSet(b.cfg.Zigbee2MQTTBase, b.ent.ID())
	return b.cmd.PublishJSON(ctx, topic, map[string]int{"pi_heating_demand": value})
}

func (b bosch) NormalizeState(ctx context.Context) bool {
	if !b.Available() {
		return false
	}
	return b.climate.normalizeHVACMode(ctx, "auto", "heat")
}

type shelly struct{ base }

func (shelly) Type() string { return TypeShelly }

func (s shelly) Position() (float64, bool) {
	return s.positionEntity()
}

func (s shelly) SetPosition(ctx context.Context, value int, _ bool) error {
	protocol := TypeShelly
	if st, ok := s.store.Get(s.cfg.ValvePosition); ok && st.Protocol != "" {
		protocol = st.Protocol
	}
	return s.cmd.Send(ctx, protocol, s.cfg.ValvePosition, CommandSetValue, map[string]any{"value": value})
}

func (shelly) NormalizeState(context.Context) bool { return false }

type knx struct{ base }

func (knx) Type() string { return TypeKNX }

func (k knx) Position() (float64, bool) {
	return k.ent.Float("valve_position")
}

func (k knx) SetPosition(ctx context.Context, value int, _ bool) error {
	return k.cmd.Send(ctx, TypeKNX, k.ent.ID(), CommandSetPosition, map[string]any{"position": value})
}

func (knx) NormalizeState(context.Context) bool { return false }

// newFamily builds the family chosen by Select.
func newFamily(typ string, cfg Config, ent *entity.Entity, store *entity.Store, cmd Commander, logger Logger) (Family, error) {
	switch typ {
	case TypeEurotronic:
		return eurotronic{newBase(cfg, ent, store, cmd, logger, "local_temperature")}, nil
	case TypeHomematic:
		return homematic{newBase(cfg, ent, store, cmd, logger, "current_temperature")}, nil
	case TypeHomematicIPLocal:
		return homematicIPLocal{newBase(cfg, ent, store, cmd, logger, "current_temperature")}, nil
	case TypeBosch:
		return bosch{newBase(cfg, ent, store, cmd, logger, "local_temperature")}, nil
	case TypeShelly:
		return shelly{newBase(cfg, ent, store, cmd, logger, "current_temperature")}, nil
	case TypeKNX:
		return knx{newBase(cfg, ent, store, cmd, logger, "current_temperature")}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, typ)
	}
}

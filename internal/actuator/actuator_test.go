package actuator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-valves/internal/entity"
)

type sent struct {
	protocol string
	deviceID string
	command  string
	params   map[string]any
}

type publishedJSON struct {
	topic string
	value any
}

// mockCommander records every write.
type mockCommander struct {
	mu        sync.Mutex
	sends     []sent
	published []publishedJSON
	err       error
}

func (m *mockCommander) Send(_ context.Context, protocol, deviceID, command string, params map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sent{protocol, deviceID, command, params})
	return m.err
}

func (m *mockCommander) PublishJSON(_ context.Context, topic string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedJSON{topic, v})
	return m.err
}

func (m *mockCommander) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.published))
	for _, p := range m.published {
		out = append(out, p.topic)
	}
	return out
}

func (m *mockCommander) find(topic string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.published {
		if p.topic == topic {
			return p.value, true
		}
	}
	return nil, false
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		attrs    map[string]any
		protocol string
		want     string
		wantErr  error
	}{
		{"explicit eurotronic", Config{Type: TypeEurotronic}, nil, "", TypeEurotronic, nil},
		{"auto eurotronic", Config{Type: TypeAuto}, map[string]any{"eurotronic_system_mode": 1.0}, "zigbee2mqtt", TypeEurotronic, nil},
		{"auto homematic", Config{}, map[string]any{"interface": "rf"}, "homematic", TypeHomematic, nil},
		{"auto homematicip_local", Config{Type: TypeAuto, ValvePosition: "sensor.pos"}, map[string]any{"interface_id": "ccu-BidCos-RF"}, "", TypeHomematicIPLocal, nil},
		{"auto knx by protocol", Config{Type: TypeAuto}, map[string]any{}, "knx", TypeKNX, nil},
		{"eurotronic probed before homematic", Config{}, map[string]any{"eurotronic_system_mode": 1.0, "interface": "rf"}, "", TypeEurotronic, nil},
		{"auto nothing matches", Config{Type: TypeAuto}, map[string]any{"current_temperature": 20.0}, "zigbee2mqtt", "", ErrNoFamily},
		{"auto never probes bosch", Config{Type: TypeAuto}, map[string]any{"pi_heating_demand": 10.0}, "zigbee2mqtt", "", ErrNoFamily},
		{"shelly without position entity", Config{Type: TypeShelly}, nil, "", "", ErrInvalidConfig},
		{"homematicip_local auto without position entity", Config{}, map[string]any{"interface_id": "x-BidCos-RF"}, "", "", ErrInvalidConfig},
		{"unknown type", Config{Type: "danfoss"}, nil, "", "", ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.cfg, tt.attrs, tt.protocol)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Select() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Select() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProxy_RetriesUntilRecognised(t *testing.T) {
	store := entity.NewStore()
	p := NewProxy(Config{Name: "kitchen_trv", Zigbee2MQTTBase: "zigbee2mqtt"}, store, &mockCommander{}, nil)

	if p.Available() {
		t.Fatal("Available() = true before any state")
	}
	if _, err := p.Family(); !errors.Is(err, ErrNoFamily) {
		t.Fatalf("Family() error = %v, want ErrNoFamily", err)
	}

	store.Update("kitchen_trv", "zigbee2mqtt", map[string]any{
		"eurotronic_system_mode": 1.0,
		"local_temperature":      18.0,
		"pi_heating_demand":      12.0,
	})

	if !p.Available() {
		t.Fatal("Available() = false after state arrived")
	}
	if p.Type() != TypeEurotronic {
		t.Errorf("Type() = %q", p.Type())
	}

	// Selection is cached even if the probe attribute goes away.
	store.Update("kitchen_trv", "zigbee2mqtt", map[string]any{"eurotronic_system_mode": nil})
	if f, err := p.Family(); err != nil || f.Type() != TypeEurotronic {
		t.Errorf("Family() = %v, %v", f, err)
	}
	if v, ok := p.Position(); !ok || v != 12 {
		t.Errorf("Position() = (%v, %v), want 12", v, ok)
	}
}

func TestProxy_InvalidConfigIsPermanent(t *testing.T) {
	store := entity.NewStore()
	store.Update("plug_trv", "shelly", map[string]any{"current_temperature": 20.0})
	p := NewProxy(Config{Name: "plug_trv", Type: TypeShelly}, store, &mockCommander{}, nil)

	if p.Available() {
		t.Error("Available() = true for misconfigured actuator")
	}
	if !errors.Is(p.Err(), ErrInvalidConfig) {
		t.Errorf("Err() = %v, want ErrInvalidConfig", p.Err())
	}
	err := p.SetPosition(context.Background(), 10, false)
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetPosition() error = %v", err)
	}
}

func TestEurotronic_SetPosition(t *testing.T) {
	store := entity.NewStore()
	store.Update("bath_trv", "zigbee2mqtt", map[string]any{"local_temperature": 21.0})
	cmd := &mockCommander{}
	p := NewProxy(Config{Name: "bath_trv", Type: TypeEurotronic, Zigbee2MQTTBase: "zigbee2mqtt"}, store, cmd, nil)

	if err := p.SetPosition(context.Background(), 50, true); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	v, ok := cmd.find("zigbee2mqtt/bath_trv/set/eurotronic_valve_position")
	if !ok || v != 127 {
		t.Errorf("published %v (%v), want 127", v, cmd.topics())
	}
}

func TestEurotronic_NormalizeState(t *testing.T) {
	tests := []struct {
		name      string
		attrs     map[string]any
		want      bool
		wantTopic string
		wantValue any
	}{
		{
			name:      "heat mode switched to auto",
			attrs:     map[string]any{"system_mode": "heat", "occupied_heating_setpoint": 30.0, "local_temperature": 20.0, "pi_heating_demand": 10.0},
			want:      true,
			wantTopic: "z/trv/set",
			wantValue: map[string]any{"system_mode": "auto"},
		},
		{
			name:      "setpoint forced to 30",
			attrs:     map[string]any{"system_mode": "auto", "occupied_heating_setpoint": 22.0, "local_temperature": 20.0, "pi_heating_demand": 10.0},
			want:      true,
			wantTopic: "z/trv/set",
			wantValue: map[string]any{"occupied_heating_setpoint": 30.0},
		},
		{
			name:      "implausible temperature flips trv mode",
			attrs:     map[string]any{"system_mode": "auto", "occupied_heating_setpoint": 30.0, "local_temperature": 0.5, "pi_heating_demand": 10.0},
			want:      true,
			wantTopic: "z/trv/set/eurotronic_trv_mode",
			wantValue: 2,
		},
		{
			name:      "demand too high",
			attrs:     map[string]any{"system_mode": "auto", "occupied_heating_setpoint": 30.0, "local_temperature": 20.0, "pi_heating_demand": 90.0},
			want:      true,
			wantTopic: "z/trv/set/eurotronic_trv_mode",
			wantValue: 1,
		},
		{
			name:      "already normal",
			attrs:     map[string]any{"system_mode": "auto", "occupied_heating_setpoint": 30.0, "local_temperature": 20.0, "pi_heating_demand": 10.0},
			want:      false,
			wantTopic: "z/trv/get",
			wantValue: map[string]string{"local_temperature": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := entity.NewStore()
			store.Update("trv", entity.ProtocolZigbee2MQTT, tt.attrs)
			cmd := &mockCommander{}
			p := NewProxy(Config{Name: "trv", Type: TypeEurotronic, Zigbee2MQTTBase: "z"}, store, cmd, nil)

			if got := p.NormalizeState(context.Background()); got != tt.want {
				t.Errorf("NormalizeState() = %v, want %v", got, tt.want)
			}
			v, ok := cmd.find(tt.wantTopic)
			if !ok {
				t.Fatalf("no publish on %s, got %v", tt.wantTopic, cmd.topics())
			}
			if !equalJSONish(v, tt.wantValue) {
				t.Errorf("payload = %#v, want %#v", v, tt.wantValue)
			}
		})
	}
}

func equalJSONish(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if bv[k] != v {
				return false
			}
		}
		return true
	case map[string]string:
		bv, ok := b.(map[string]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if bv[k] != v {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func TestHomematic_SetPosition(t *testing.T) {
	store := entity.NewStore()
	store.Update("bedroom_trv", "homematic", map[string]any{
		"interface": "rf", "id": "MEQ0123456", "current_temperature": 19.0, "valve": 22.0,
	})
	cmd := &mockCommander{}
	p := NewProxy(Config{Name: "bedroom_trv"}, store, cmd, nil)

	if err := p.SetPosition(context.Background(), 35, true); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	if len(cmd.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(cmd.sends))
	}
	s := cmd.sends[0]
	if s.protocol != "homematic" || s.command != CommandPutParamset || s.deviceID != "bedroom_trv" {
		t.Errorf("send = %+v", s)
	}
	if s.params["address"] != "MEQ0123456" || s.params["rx_mode"] != "BURST" || s.params["paramset_key"] != "MASTER" {
		t.Errorf("params = %v", s.params)
	}
	paramset, _ := s.params["paramset"].(map[string]any)
	if paramset["VALVE_MAXIMUM_POSITION"] != 35 {
		t.Errorf("paramset = %v", paramset)
	}
	if v, _ := p.Position(); v != 22 {
		t.Errorf("Position() = %v, want 22", v)
	}
}

func TestHomematic_NormalizeTargetFollowsHeatingSwitch(t *testing.T) {
	tests := []struct {
		name    string
		heating string
		want    float64
	}{
		{"heating on", "on", 30.5},
		{"heating off", "off", 4.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := entity.NewStore()
			store.Update("trv", "homematic", map[string]any{"state": "heat", "interface": "rf", "current_temperature": 20.0, "temperature": 21.0})
			store.SetState("heating_on", "knx", tt.heating)
			cmd := &mockCommander{}
			p := NewProxy(Config{Name: "trv", HeatingSwitch: "heating_on"}, store, cmd, nil)

			if !p.NormalizeState(context.Background()) {
				t.Fatal("NormalizeState() = false, want true")
			}
			last := cmd.sends[len(cmd.sends)-1]
			if last.command != CommandSetTemperature || last.params["temperature"] != tt.want {
				t.Errorf("last send = %+v, want temperature %v", last, tt.want)
			}
		})
	}
}

func TestHomematic_NormalizeHVACModeFirst(t *testing.T) {
	store := entity.NewStore()
	store.Update("trv", "homematic", map[string]any{"state": "auto", "interface": "rf", "current_temperature": 20.0, "temperature": 21.0})
	cmd := &mockCommander{}
	p := NewProxy(Config{Name: "trv"}, store, cmd, nil)

	if !p.NormalizeState(context.Background()) {
		t.Fatal("NormalizeState() = false")
	}
	if len(cmd.sends) != 1 || cmd.sends[0].command != CommandSetHVACMode || cmd.sends[0].params["hvac_mode"] != "heat" {
		t.Errorf("sends = %+v", cmd.sends)
	}
}

func TestShelly(t *testing.T) {
	store := entity.NewStore()
	store.Update("lounge_trv", "shelly", map[string]any{"current_temperature": 20.5})
	store.SetState("lounge_trv_position", "shelly", "42")
	cmd := &mockCommander{}
	p := NewProxy(Config{Name: "lounge_trv", Type: TypeShelly, ValvePosition: "lounge_trv_position"}, store, cmd, nil)

	if v, ok := p.Position(); !ok || v != 42 {
		t.Errorf("Position() = (%v, %v), want 42", v, ok)
	}
	if p.NormalizeState(context.Background()) {
		t.Error("NormalizeState() = true, shelly has nothing to normalize")
	}
	if err := p.SetPosition(context.Background(), 18, false); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	s := cmd.sends[0]
	if s.deviceID != "lounge_trv_position" || s.command != CommandSetValue || s.params["value"] != 18 {
		t.Errorf("send = %+v", s)
	}
}

func TestKNX_SetPosition(t *testing.T) {
	store := entity.NewStore()
	store.Update("bath-valve", "knx", map[string]any{"current_temperature": 22.0, "valve_position": 15.0})
	cmd := &mockCommander{err: errors.New("broker down")}
	p := NewProxy(Config{Name: "bath-valve"}, store, cmd, nil)

	err := p.SetPosition(context.Background(), 20, false)
	if err == nil {
		t.Fatal("SetPosition() expected transport error")
	}
	if s := cmd.sends[0]; s.protocol != "knx" || s.command != CommandSetPosition || s.params["position"] != 20 {
		t.Errorf("send = %+v", s)
	}
}

func TestThermostat_NormalizeThermostat(t *testing.T) {
	store := entity.NewStore()
	cmd := &mockCommander{}
	th := NewThermostat(store, "living_thermostat", cmd, "zigbee2mqtt", nil)

	if th.NormalizeThermostat(context.Background()) {
		t.Error("NormalizeThermostat() = true for unknown entity")
	}

	store.Update("living_thermostat", "homematic", map[string]any{"state": "auto", "current_temperature": 20.0})
	if !th.NormalizeThermostat(context.Background()) {
		t.Fatal("NormalizeThermostat() = false for auto thermostat")
	}
	if s := cmd.sends[0]; s.command != CommandSetHVACMode || s.params["hvac_mode"] != "heat" {
		t.Errorf("send = %+v", s)
	}

	store.Update("living_thermostat", "homematic", map[string]any{"state": "heat"})
	if th.NormalizeThermostat(context.Background()) {
		t.Error("NormalizeThermostat() = true for heat thermostat")
	}
}

package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/mqtt"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*Store, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 2, 3, 18, 0, 0, 0, time.UTC)}
	return NewStore(WithClock(clk.now)), clk
}

func TestStore_UpdateMergesAttributes(t *testing.T) {
	s, _ := newTestStore()

	s.Update("trv", "zigbee2mqtt", map[string]any{"local_temperature": 19.5, "pi_heating_demand": 20.0})
	s.Update("trv", "", map[string]any{"pi_heating_demand": 35.0})

	st, ok := s.Get("trv")
	if !ok {
		t.Fatal("Get() entity missing")
	}
	if st.Protocol != "zigbee2mqtt" {
		t.Errorf("Protocol = %q", st.Protocol)
	}
	if st.Attributes["local_temperature"] != 19.5 || st.Attributes["pi_heating_demand"] != 35.0 {
		t.Errorf("Attributes = %v", st.Attributes)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s, _ := newTestStore()
	s.Update("a", "knx", map[string]any{"x": 1.0})

	st, _ := s.Get("a")
	st.Attributes["x"] = 2.0

	again, _ := s.Get("a")
	if again.Attributes["x"] != 1.0 {
		t.Error("mutating a snapshot changed the store")
	}
}

func TestStore_LastChangedTracksPrimaryState(t *testing.T) {
	s, clk := newTestStore()
	start := clk.t

	s.Update("window", "zigbee2mqtt", map[string]any{"contact": true})
	clk.advance(time.Minute)
	s.Update("window", "zigbee2mqtt", map[string]any{"contact": true, "battery": 90.0})

	st, _ := s.Get("window")
	if st.State != "off" || !st.LastChanged.Equal(start) {
		t.Errorf("State = %q LastChanged = %v, want off at %v", st.State, st.LastChanged, start)
	}

	clk.advance(time.Minute)
	s.Update("window", "zigbee2mqtt", map[string]any{"contact": false})

	st, _ = s.Get("window")
	if st.State != "on" || !st.LastChanged.Equal(clk.t) {
		t.Errorf("State = %q LastChanged = %v, want on at %v", st.State, st.LastChanged, clk.t)
	}
}

func TestPrimaryState(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  string
		found bool
	}{
		{"state string lowercased", map[string]any{"state": "ON"}, "on", true},
		{"state bool", map[string]any{"state": false}, "off", true},
		{"numeric state", map[string]any{"state": 21.5}, "21.5", true},
		{"system mode", map[string]any{"system_mode": "heat"}, "heat", true},
		{"open contact", map[string]any{"contact": false}, "on", true},
		{"value", map[string]any{"value": 0.5}, "0.5", true},
		{"nothing", map[string]any{"battery": 80.0}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := PrimaryState(tt.attrs)
			if got != tt.want || found != tt.found {
				t.Errorf("PrimaryState() = (%q, %v), want (%q, %v)", got, found, tt.want, tt.found)
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{21.5, 21.5, true},
		{3, 3, true},
		{" 4.5 ", 4.5, true},
		{"heat", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ToFloat(%v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEntity_AttributeFallsBackToCache(t *testing.T) {
	s, _ := newTestStore()
	e := NewEntity(s, "thermostat")

	if _, ok := e.Attribute("mode"); ok {
		t.Fatal("Attribute() found a value before any state")
	}

	s.Update("thermostat", "homematic", map[string]any{"mode": "Boost"})
	if v, _ := e.String("mode"); v != "Boost" {
		t.Fatalf("String(mode) = %q", v)
	}

	// Bridges may send a later update that drops the attribute.
	s.Update("thermostat", "homematic", map[string]any{"mode": nil})
	if v, ok := e.String("mode"); !ok || v != "Boost" {
		t.Errorf("String(mode) = (%q, %v), want cached Boost", v, ok)
	}
}

func TestSensor_Value(t *testing.T) {
	s, _ := newTestStore()
	sensor := NewSensor(s, "living")

	if sensor.Available() {
		t.Error("Available() = true for unknown entity")
	}

	s.Update("living", "knx", map[string]any{"temperature": 20.0})
	if v, ok := sensor.Value(); !ok || v != 20 {
		t.Errorf("Value() = (%v, %v), want 20", v, ok)
	}

	s.Update("living", "knx", map[string]any{"current_temperature": 19.25})
	if v, _ := sensor.Value(); v != 19.25 {
		t.Errorf("Value() = %v, want current_temperature 19.25", v)
	}
	if !sensor.Available() {
		t.Error("Available() = false with a reading")
	}
}

func TestHandleBridgeState(t *testing.T) {
	s, _ := newTestStore()

	payload := []byte(`{"device_id":"bath-valve","protocol":"knx","state":{"valve_position":40,"current_temperature":21.1}}`)
	if err := s.HandleBridgeState("graylogic/state/knx/1.1.4", payload); err != nil {
		t.Fatalf("HandleBridgeState() error = %v", err)
	}

	st, ok := s.Get("bath-valve")
	if !ok {
		t.Fatal("entity not stored under device_id")
	}
	if st.Protocol != "knx" || st.Attributes["valve_position"] != 40.0 {
		t.Errorf("state = %+v", st)
	}
}

func TestHandleBridgeState_Errors(t *testing.T) {
	s, _ := newTestStore()

	if err := s.HandleBridgeState("graylogic/ack/knx/x", []byte(`{}`)); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("ack topic error = %v, want ErrInvalidTopic", err)
	}
	if err := s.HandleBridgeState("graylogic/state/knx/x", []byte(`{`)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("bad json error = %v, want ErrInvalidPayload", err)
	}
}

func TestZigbee2MQTTHandler(t *testing.T) {
	s, _ := newTestStore()
	h := s.Zigbee2MQTTHandler("zigbee2mqtt")

	if err := h("zigbee2mqtt/kitchen_trv", []byte(`{"local_temperature":18.5,"system_mode":"auto"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if err := h("zigbee2mqtt/bridge", []byte(`"online"`)); err != nil {
		t.Errorf("bridge topic error = %v, want nil", err)
	}

	st, ok := s.Get("kitchen_trv")
	if !ok || st.State != "auto" || st.Protocol != ProtocolZigbee2MQTT {
		t.Errorf("state = %+v", st)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

type fakeSubscriber struct {
	topics []string
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) error {
	f.topics = append(f.topics, topic)
	return nil
}

func TestSubscribe(t *testing.T) {
	s, _ := newTestStore()
	sub := &fakeSubscriber{}

	err := s.Subscribe(sub, SubscribeOptions{Bridges: true, Zigbee2MQTT: true, Zigbee2MQTTBase: "z2m"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	want := []string{"graylogic/state/+/+", "z2m/+"}
	if len(sub.topics) != 2 || sub.topics[0] != want[0] || sub.topics[1] != want[1] {
		t.Errorf("topics = %v, want %v", sub.topics, want)
	}
}

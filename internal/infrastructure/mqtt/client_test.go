package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/config"
)

// fakeToken is a completed paho token.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records calls instead of talking to a broker.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	publishErr   error
	subscribeErr error
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool      { f.mu.Lock(); defer f.mu.Unlock(); return f.connected }
func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token {
	return &fakeToken{}
}
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnected = true
	f.mu.Unlock()
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	return &fakeToken{err: f.publishErr}
}
func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr == nil {
		f.handlers[topic] = cb
	}
	return &fakeToken{err: f.subscribeErr}
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}
func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	return &fakeToken{}
}
func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler)    {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader { return pahomqtt.ClientOptionsReader{} }

func (f *fakePaho) deliver(subscribed, topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[subscribed]
	f.mu.Unlock()
	h(f, fakeMessage{topic: topic, payload: payload})
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-valves-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestPublish(t *testing.T) {
	fake := newFakePaho()
	c := newWithClient(fake, testConfig())

	if err := c.Publish("zigbee2mqtt/trv/set", []byte(`{"a":1}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(fake.published) != 1 || fake.published[0].topic != "zigbee2mqtt/trv/set" {
		t.Errorf("published = %+v", fake.published)
	}
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"invalid qos", "a/b", 3, nil, ErrInvalidQoS},
		{"oversized payload", "a/b", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newWithClient(newFakePaho(), testConfig())
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	fake := newFakePaho()
	fake.connected = false
	c := newWithClient(fake, testConfig())

	if err := c.Publish("a/b", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_BrokerError(t *testing.T) {
	fake := newFakePaho()
	fake.publishErr = errors.New("not authorised")
	c := newWithClient(fake, testConfig())

	if err := c.Publish("a/b", nil, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishJSON(t *testing.T) {
	fake := newFakePaho()
	c := newWithClient(fake, testConfig())

	if err := c.PublishJSON("graylogic/core/valves/queue", map[string]int{"depth": 2}, true); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	got := fake.published[0]
	if !got.retained || got.qos != 1 || string(got.payload) != `{"depth":2}` {
		t.Errorf("PublishJSON published %+v", got)
	}

	if err := c.PublishJSON("a/b", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_DeliversAndTracks(t *testing.T) {
	fake := newFakePaho()
	c := newWithClient(fake, testConfig())

	var got string
	err := c.Subscribe("graylogic/state/+/+", 1, func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription("graylogic/state/+/+") {
		t.Error("subscription not tracked")
	}

	fake.deliver("graylogic/state/+/+", "graylogic/state/knx/valve-1", []byte("on"))
	if got != "graylogic/state/knx/valve-1=on" {
		t.Errorf("handler received %q", got)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newWithClient(newFakePaho(), testConfig())
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("a", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("a", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestSubscribe_BrokerErrorNotTracked(t *testing.T) {
	fake := newFakePaho()
	fake.subscribeErr = errors.New("denied")
	c := newWithClient(fake, testConfig())

	err := c.Subscribe("a/b", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("a/b") {
		t.Error("failed subscription should not be tracked")
	}
}

func TestWrapHandler_ErrorAndPanic(t *testing.T) {
	fake := newFakePaho()
	c := newWithClient(fake, testConfig())
	logger := &mockLogger{}
	c.SetLogger(logger)

	_ = c.Subscribe("err", 1, func(string, []byte) error { return errors.New("bad payload") })
	_ = c.Subscribe("panic", 1, func(string, []byte) error { panic("boom") })

	fake.deliver("err", "err", nil)
	fake.deliver("panic", "panic", nil)

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want 1 entry", logger.warns)
	}
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v, want panic entry", logger.errors)
	}
}

func TestHandleConnect_RestoresSubscriptionsAndStatus(t *testing.T) {
	fake := newFakePaho()
	c := newWithClient(fake, testConfig())
	_ = c.Subscribe("graylogic/ack/+/+", 1, func(string, []byte) error { return nil })

	fake.handlers = make(map[string]pahomqtt.MessageHandler)
	called := false
	c.SetOnConnect(func() { called = true })
	c.handleConnect()

	if _, ok := fake.handlers["graylogic/ack/+/+"]; !ok {
		t.Error("subscription not restored on reconnect")
	}
	if !called {
		t.Error("OnConnect callback not invoked")
	}
	last := fake.published[len(fake.published)-1]
	if last.topic != (Topics{}).ServiceStatus() || !strings.Contains(string(last.payload), `"online"`) {
		t.Errorf("status publish = %+v", last)
	}
}

func TestHandleDisconnect(t *testing.T) {
	fake := newFakePaho()
	c := newWithClient(fake, testConfig())

	var gotErr error
	c.SetOnDisconnect(func(err error) { gotErr = err })
	c.handleDisconnect(errors.New("eof"))

	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
	if gotErr == nil {
		t.Error("OnDisconnect callback not invoked")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := newWithClient(newFakePaho(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestClose_PublishesOffline(t *testing.T) {
	fake := newFakePaho()
	c := newWithClient(fake, testConfig())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.disconnected {
		t.Error("paho client not disconnected")
	}

	var status map[string]string
	if err := json.Unmarshal(fake.published[0].payload, &status); err != nil {
		t.Fatalf("offline payload not JSON: %v", err)
	}
	if status["reason"] != "graceful_shutdown" {
		t.Errorf("offline reason = %q", status["reason"])
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "valves"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "valves" || opts.ClientID != "graylogic-valves-test" {
		t.Errorf("Username/ClientID = %q/%q", opts.Username, opts.ClientID)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}
	if !opts.WillEnabled || !opts.WillRetained || opts.WillTopic != (Topics{}).ServiceStatus() {
		t.Errorf("will = %v %v %q", opts.WillEnabled, opts.WillRetained, opts.WillTopic)
	}
	var will statusMessage
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	if will.Status != statusOffline || will.Reason != reasonLost {
		t.Errorf("will = %+v", will)
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.BridgeState("knx", "valve-1"), "graylogic/state/knx/valve-1"},
		{topics.BridgeCommand("homematic", "bedroom_trv"), "graylogic/command/homematic/bedroom_trv"},
		{topics.BridgeAck("homematic", "bedroom_trv"), "graylogic/ack/homematic/bedroom_trv"},
		{topics.AllBridgeStates(), "graylogic/state/+/+"},
		{topics.AllBridgeAcks(), "graylogic/ack/+/+"},
		{topics.ServiceStatus(), "graylogic/core/valves/status"},
		{topics.ValveState("kitchen"), "graylogic/core/valves/kitchen/state"},
		{topics.QueueDepth(), "graylogic/core/valves/queue"},
		{topics.Zigbee2MQTTDevice("z2m", "trv"), "z2m/trv"},
		{topics.Zigbee2MQTTAll("z2m"), "z2m/+"},
		{topics.Zigbee2MQTTSet("z2m", "trv"), "z2m/trv/set"},
		{topics.Zigbee2MQTTSet("z2m", "trv", "eurotronic_valve_position"), "z2m/trv/set/eurotronic_valve_position"},
		{topics.Zigbee2MQTTGet("z2m", "trv"), "z2m/trv/get"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseBridgeTopic(t *testing.T) {
	category, protocol, entity, ok := ParseBridgeTopic("graylogic/ack/knx/valve-1")
	if !ok || category != "ack" || protocol != "knx" || entity != "valve-1" {
		t.Errorf("ParseBridgeTopic() = %q %q %q %v", category, protocol, entity, ok)
	}

	for _, bad := range []string{"graylogic/ack/knx", "other/ack/knx/x", "graylogic/ack//x", "graylogic/a/b/c/d"} {
		if _, _, _, ok := ParseBridgeTopic(bad); ok {
			t.Errorf("ParseBridgeTopic(%q) ok = true", bad)
		}
	}
}

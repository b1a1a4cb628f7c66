package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/config"
)

// MessageHandler receives one message. topic is the concrete topic, not
// the subscribed pattern. A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the service's single broker connection. It carries bridge
// state in, valve commands out, and retained diagnostics. Safe for
// concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	up atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(error)
	logger       Logger
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Connect dials the broker and waits up to defaultConnectTimeout for the
// first CONNACK. Later drops are retried by paho with backoff between the
// configured reconnect delays.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, subscriptions: make(map[string]subscription)}

	opts := buildClientOptions(cfg).
		SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
		})

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}
	// OnConnect fires asynchronously; do not make callers wait for it.
	c.up.Store(true)
	return c, nil
}

// newWithClient wraps a paho client that is already connected.
func newWithClient(pc pahomqtt.Client, cfg config.MQTTConfig) *Client {
	c := &Client{client: pc, cfg: cfg, subscriptions: make(map[string]subscription)}
	c.up.Store(true)
	return c
}

func (c *Client) handleConnect() {
	c.up.Store(true)
	c.resubscribe()
	c.client.Publish(Topics{}.ServiceStatus(), byte(c.cfg.QoS), true,
		statusPayload(c.cfg.Broker.ClientID, statusOnline, ""))

	c.hookMu.RLock()
	fn := c.onConnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.up.Store(false)

	c.hookMu.RLock()
	fn := c.onDisconnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Close publishes a retained offline status, so dashboards can tell a
// shutdown from the last will, then disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.client.Publish(Topics{}.ServiceStatus(), byte(c.cfg.QoS), true,
			statusPayload(c.cfg.Broker.ClientID, statusOffline, reasonShutdown)).
			WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(disconnectQuiesceMs)
	c.up.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while paho is reconnecting.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected requires both our view and paho's to agree.
func (c *Client) IsConnected() bool {
	return c.up.Load() && c.client.IsConnected()
}

// SetOnConnect registers fn to run after the first connect and every
// reconnect, once subscriptions have been replayed.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(error)) {
	c.hookMu.Lock()
	c.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger enables logging of handler errors, panics and reconnects.
func (c *Client) SetLogger(l Logger) {
	c.hookMu.Lock()
	c.logger = l
	c.hookMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.logger
}

func (c *Client) warn(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

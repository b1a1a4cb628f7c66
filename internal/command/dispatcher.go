// Package command sends device commands to protocol bridges and zigbee2mqtt
// over MQTT, optionally waiting for the bridge acknowledgement.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/mqtt"
)

// DefaultSource is the Source field of commands sent by this service.
const DefaultSource = "valves"

const qosCommand = 1

// Publisher publishes MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Subscriber subscribes to MQTT topics.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Dispatcher.
type Options struct {
	// WaitForAck makes Send block until the bridge acknowledges.
	WaitForAck bool

	// AckTimeout bounds the wait for an acknowledgement.
	AckTimeout time.Duration

	// Source overrides DefaultSource.
	Source string

	Logger Logger
}

// Dispatcher publishes commands and correlates acknowledgements.
//
// Thread Safety: all methods are safe for concurrent use.
type Dispatcher struct {
	pub    Publisher
	opts   Options
	logger Logger
	now    func() time.Time
	newID  func() string

	mu      sync.Mutex
	pending map[string]chan AckMessage
}

// NewDispatcher creates a dispatcher publishing through pub.
func NewDispatcher(pub Publisher, opts Options) *Dispatcher {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		pub:     pub,
		opts:    opts,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		pending: make(map[string]chan AckMessage),
	}
}

// Send publishes a command to graylogic/command/{protocol}/{deviceID}.
//
// With WaitForAck set, Send returns only after the bridge acknowledges:
//   - nil for accepted or queued
//   - ErrRejected for failed or timeout
//   - ErrAckTimeout when no acknowledgement arrives
//   - ctx.Err() when ctx ends first
func (d *Dispatcher) Send(ctx context.Context, protocol, deviceID, command string, params map[string]any) error {
	if d.pub == nil {
		return ErrNotConnected
	}

	msg := Message{
		ID:         d.newID(),
		Timestamp:  d.now(),
		DeviceID:   deviceID,
		Command:    command,
		Parameters: params,
		Source:     d.opts.Source,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	var ack chan AckMessage
	if d.opts.WaitForAck {
		ack = make(chan AckMessage, 1)
		d.mu.Lock()
		d.pending[msg.ID] = ack
		d.mu.Unlock()
		defer d.forget(msg.ID)
	}

	topic := mqtt.Topics{}.BridgeCommand(protocol, deviceID)
	if err := d.pub.Publish(topic, payload, qosCommand, false); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", command, topic, err)
	}
	d.logger.Debug("command sent", "topic", topic, "command", command, "id", msg.ID)

	if ack == nil {
		return nil
	}

	timer := time.NewTimer(d.opts.AckTimeout)
	defer timer.Stop()

	select {
	case a := <-ack:
		if a.Status.Succeeded() {
			return nil
		}
		if a.Error != nil {
			return fmt.Errorf("%w: %s %s: %s", ErrRejected, a.Status, a.Error.Code, a.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrRejected, a.Status)
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ErrAckTimeout, command, d.opts.AckTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishJSON publishes v as JSON to an arbitrary topic, for devices driven
// directly through zigbee2mqtt.
func (d *Dispatcher) PublishJSON(ctx context.Context, topic string, v any) error {
	if d.pub == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling payload for %s: %w", topic, err)
	}
	if err := d.pub.Publish(topic, payload, qosCommand, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// HandleAck routes a bridge acknowledgement to the waiting Send call.
// Acks for unknown or already answered commands are dropped.
func (d *Dispatcher) HandleAck(topic string, payload []byte) error {
	var a AckMessage
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("decoding ack on %s: %w", topic, err)
	}

	d.mu.Lock()
	ch, ok := d.pending[a.CommandID]
	if ok {
		delete(d.pending, a.CommandID)
	}
	d.mu.Unlock()

	if !ok {
		return nil
	}
	ch <- a
	return nil
}

// SubscribeAcks subscribes HandleAck to every bridge ack topic. It is a
// no-op when acknowledgements are not awaited.
func (d *Dispatcher) SubscribeAcks(sub Subscriber) error {
	if !d.opts.WaitForAck {
		return nil
	}
	if err := sub.Subscribe(mqtt.Topics{}.AllBridgeAcks(), qosCommand, d.HandleAck); err != nil {
		return fmt.Errorf("subscribing to acks: %w", err)
	}
	return nil
}

// Pending returns the number of commands awaiting acknowledgement.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) forget(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

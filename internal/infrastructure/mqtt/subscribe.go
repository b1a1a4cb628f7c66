package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe routes messages matching topic (wildcards allowed) to handler.
// The subscription is remembered and replayed after every reconnect, since
// the client uses clean sessions. A failed subscribe is not remembered.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed)
	if err != nil {
		return err
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()
	return nil
}

// HasSubscription reports whether topic (the exact pattern) is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// resubscribe replays remembered subscriptions after a reconnect. Failures
// are logged and retried on the next reconnect.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, sub := range c.subscriptions {
		token := c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
		go func(topic string) {
			if err := await(token, defaultPublishTimeout, ErrSubscribeFailed); err != nil {
				c.warn("MQTT resubscribe failed", "topic", topic, "error", err)
			}
		}(topic)
	}
}

// wrapHandler adapts a MessageHandler to paho. Handler errors are logged as
// warnings and panics are recovered and logged as errors.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
				}
			}
		}()

		if err := handler(topic, msg.Payload()); err != nil {
			c.warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}

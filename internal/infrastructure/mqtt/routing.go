package mqtt

import (
	"fmt"
	"slices"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outgoing payloads (1MB).
const maxPayloadSize = 1 << 20

// Subscribe subscribes to topic. Messages are dispatched to the routes
// added with AddRoute; the subscription is restored after a reconnect.
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = qos
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, nil)
	var err error
	if !token.WaitTimeout(ackTimeout) {
		err = fmt.Errorf("timeout after %v", ackTimeout)
	} else {
		err = token.Error()
	}
	if err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Subscriptions returns the subscribed topics, sorted.
func (c *Client) Subscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// AddRoute binds handler to messages arriving on topic. Routes survive
// reconnects and may be added before the matching subscription exists.
func (c *Client) AddRoute(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if c.client == nil {
		return ErrNotConnected
	}

	c.client.AddRoute(topic, c.wrapHandler(handler))
	return nil
}

// wrapHandler adapts handler to paho, recovering panics and logging
// returned errors.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// PublishAsync hands a message to paho and returns without waiting for
// the acknowledgement, so it is safe to call from a routed handler. Only
// local failures (validation, not connected) are returned; delivery
// failures are logged.
func (c *Client) PublishAsync(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	go func() {
		var err error
		if !token.WaitTimeout(ackTimeout) {
			err = fmt.Errorf("not acknowledged after %v", ackTimeout)
		} else {
			err = token.Error()
		}
		if err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT publish failed", "topic", topic, "error", err)
			}
		}
	}()
	return nil
}

package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/config"
)

// Client is the node's connection to the broker.
//
// Messages are never delivered to per-subscription callbacks: every
// subscribed topic is dispatched through the routes added with AddRoute,
// in order, on paho's router goroutine. Subscriptions are restored after
// a reconnect and the retained node status is republished.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	nodeID string

	connected atomic.Bool

	subMu         sync.Mutex
	subscriptions map[string]byte // topic -> qos

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the logging used for handler failures and lost connections.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler processes a routed message. A returned error is logged.
// Handlers run on paho's router goroutine: a slow handler delays every
// later message.
type MessageHandler = func(topic string, payload []byte) error

// Connect performs a single dial to the broker. The connection carries a
// retained offline will on fieldnode/{nodeID}/status and reconnects on its
// own once established. Most callers should use Session, which retries
// the first dial.
func Connect(cfg config.MQTTConfig, nodeID string) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		nodeID:        nodeID,
		subscriptions: make(map[string]byte),
	}

	opts := buildClientOptions(cfg)
	opts.SetWill(Topics{}.NodeStatus(nodeID), string(statusPayload(cfg.Broker.ClientID, statusOffline, reasonUnexpected)), 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(dialTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, dialTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed yet.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.subMu.Lock()
	for topic, qos := range c.subscriptions {
		c.client.Subscribe(topic, qos, nil) // errors surface as a later connection loss
	}
	c.subMu.Unlock()

	c.client.Publish(Topics{}.NodeStatus(c.nodeID), c.QoS(), true,
		statusPayload(c.cfg.Broker.ClientID, statusOnline, ""))

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	callback, logger := c.onDisconnect, c.logger
	c.mu.RUnlock()

	if logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
	if callback != nil {
		callback(err)
	}
}

// Close publishes a graceful offline status, distinct from the will, and
// disconnects after a quiesce period for in-flight messages.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.NodeStatus(c.nodeID), c.QoS(), true,
			statusPayload(c.cfg.Broker.ClientID, statusOffline, reasonShutdown))
		token.WaitTimeout(ackTimeout)
	}

	c.client.Disconnect(disconnectQuiesceMs)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// QoS returns the configured QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// SetOnConnect sets a callback run after every (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger. Without one, handler errors and panics are
// recovered silently.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

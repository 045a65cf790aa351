package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/pm8sim/internal/infrastructure/config"
)

// Client is a paho connection shared by the simulator and the poller.
//
// It announces itself on pm8sim/status/{client_id}, reconnects with backoff
// and restores tracked subscriptions after every reconnect. All methods are
// safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected atomic.Bool

	hooksMu      sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger

	published     atomic.Uint64
	publishErrors atomic.Uint64
	received      atomic.Uint64
	handlerErrors atomic.Uint64
}

// Stats are cumulative message counters for one client.
type Stats struct {
	Published     uint64 `json:"published"`
	PublishErrors uint64 `json:"publish_errors"`
	Received      uint64 `json:"received"`
	HandlerErrors uint64 `json:"handler_errors"`
}

// Logger is satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. Handlers run on paho goroutines and
// should return quickly. A returned error is logged and counted; the message
// is acknowledged regardless.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the first CONNACK.
//
// An empty cfg.Broker.ClientID is replaced by "pm8sim-" plus a random
// suffix so a server and a poller on the same broker never evict each
// other. The wait ends early with ctx.
//
// Returns:
//   - *Client: Connected, online status published
//   - error: ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = generateClientID()
	}

	c := &Client{
		cfg:           cfg,
		clientID:      cfg.Broker.ClientID,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.clientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "client_id", c.clientID)
		}
	})

	c.client = pahomqtt.NewClient(opts)

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-connectCtx.Done():
		// Stop paho's connect-retry loop before giving up.
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, connectCtx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; report connected now.
	c.connected.Store(true)
	return c, nil
}

// handleConnect runs on the initial connect and on every reconnect.
func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.client.Publish(Topics{}.ClientStatus(c.clientID), statusQoS, true,
		statusPayload(c.clientID, StatusOnline, ""))

	c.hooksMu.RLock()
	callback := c.onConnect
	c.hooksMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.hooksMu.RLock()
	callback := c.onDisconnect
	c.hooksMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Close publishes a retained graceful-offline status, which replaces the
// LWT, then disconnects. Safe on a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.ClientStatus(c.clientID), statusQoS, true,
			statusPayload(c.clientID, StatusOffline, ReasonGracefulShutdown))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// Stats returns the message counters. Handler errors include recovered
// panics.
func (c *Client) Stats() Stats {
	return Stats{
		Published:     c.published.Load(),
		PublishErrors: c.publishErrors.Load(),
		Received:      c.received.Load(),
		HandlerErrors: c.handlerErrors.Load(),
	}
}

// ClientID returns the client identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets a callback run after every connect, including
// reconnects, once subscriptions have been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.hooksMu.Lock()
	c.onConnect = callback
	c.hooksMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = callback
	c.hooksMu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, counting messages and
// recovering panics.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.received.Add(1)
		logger := c.getLogger()

		defer func() {
			if r := recover(); r != nil {
				c.handlerErrors.Add(1)
				if logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.handlerErrors.Add(1)
			if logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

func generateClientID() string {
	return "pm8sim-" + uuid.NewString()[:8]
}

package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"marstek-bridge/internal/infrastructure/config"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second

	// maxPayloadSize bounds a single publish. A full fleet summary is a
	// few kilobytes; anything near this limit indicates a bug.
	maxPayloadSize = 1 << 20
)

// Logger is the optional logging interface for connection events.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client wraps paho.mqtt.golang for the bridge's publish-only needs.
//
// The bridge never subscribes; it pushes retained battery state and a
// fleet summary after each poll cycle. Connection management, LWT and
// reconnection with backoff are handled here so callers just Publish.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connMu    sync.RWMutex
	connected bool

	loggerMu sync.RWMutex
	logger   Logger
}

// Connect establishes a connection to the broker described by cfg.
//
// The Last Will publishes "offline" on BridgeStatusTopic so consumers
// can tell a crashed bridge from a quiet one; a retained "online" is
// published on every (re)connect.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	opts.SetWill(BridgeStatusTopic, statusPayload("offline", cfg.Broker.ClientID), 1, true)

	c := &Client{cfg: cfg}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.connMu.Lock()
		c.connected = true
		c.connMu.Unlock()

		c.client.Publish(BridgeStatusTopic, byte(cfg.QoS), true,
			statusPayload("online", cfg.Broker.ClientID))

		if logger := c.getLogger(); logger != nil {
			logger.Info("mqtt connected", "broker", cfg.Broker.Host)
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()

		if logger := c.getLogger(); logger != nil {
			logger.Warn("mqtt connection lost", "error", err)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark connected here so
	// IsConnected is immediately accurate.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	return opts
}

func statusPayload(status, clientID string) string {
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
		status, clientID, time.Now().UTC().Format(time.RFC3339))
}

// Publish sends payload to topic. Retained messages should be used for
// state topics so late subscribers see the current value immediately.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, byte(c.cfg.QoS), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(BridgeStatusTopic, byte(c.cfg.QoS), true,
			statusPayload("offline", c.cfg.Broker.ClientID))
		token.WaitTimeout(publishTimeout)
	}

	c.client.Disconnect(disconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
	return nil
}

// HealthCheck reports whether the broker connection is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetLogger attaches a logger for connection events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

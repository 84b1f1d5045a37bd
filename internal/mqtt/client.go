// Package mqtt consumes events from an MQTT topic with manual acknowledgment
// and publishes batch delivery receipts.
package mqtt

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ibs-source/logship/internal/config"
	"github.com/ibs-source/logship/internal/log"
	"github.com/ibs-source/logship/internal/transport"
)

const defaultTimeout = 10 * time.Second

// Client wraps a connected paho client
type Client struct {
	client            mqtt.Client
	qos               byte
	writeTimeout      time.Duration
	subscribeTimeout  time.Duration
	disconnectTimeout uint
	log               *log.Logger
}

// Options select the session behavior of a connection
type Options struct {
	// ClientID overrides the configured client ID
	ClientID string
	// ManualAck disables automatic acknowledgment of received messages and
	// keeps the session across reconnects so unacknowledged messages are
	// delivered again
	ManualAck bool
}

// NewClient creates and connects a client
func NewClient(cfg *config.MQTTConfig, o Options, logger *log.Logger) (*Client, error) {
	clientID := o.ClientID
	if clientID == "" {
		clientID = cfg.ClientID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetWriteTimeout(cfg.WriteTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetResumeSubs(true)

	if o.ManualAck {
		opts.SetAutoAckDisabled(true)
		opts.SetCleanSession(false)
		// handlers run on the router goroutine, so a full pipeline stops reading
		opts.SetOrderMatters(true)
	} else {
		opts.SetOrderMatters(false)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err != nil {
			logger.Error("MQTT connection lost: %v", err)
		}
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.InfoWithFields(log.Fields{"client_id": clientID}, "MQTT connected")
	})

	if cfg.TLSEnabled {
		tlsConfig, err := transport.NewTLSConfig(transport.TLSSettings{
			CACert:       cfg.CACert,
			ClientCert:   cfg.ClientCert,
			ClientKey:    cfg.ClientKey,
			InsecureSkip: cfg.InsecureSkip,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	return newClient(client, cfg, logger), nil
}

func newClient(client mqtt.Client, cfg *config.MQTTConfig, logger *log.Logger) *Client {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultTimeout
	}
	subscribeTimeout := cfg.SubscribeTimeout
	if subscribeTimeout <= 0 {
		subscribeTimeout = defaultTimeout
	}
	return &Client{
		client:            client,
		qos:               cfg.QoS,
		writeTimeout:      writeTimeout,
		subscribeTimeout:  subscribeTimeout,
		disconnectTimeout: cfg.DisconnectTimeout,
		log:               logger,
	}
}

// Publish sends payload to topic and waits for the broker
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, c.qos, false, payload)

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt publish timeout")
	}
}

// Subscribe registers handler for topic
func (c *Client) Subscribe(topic string, handler mqtt.MessageHandler) error {
	token := c.client.Subscribe(topic, c.qos, handler)
	if !token.WaitTimeout(c.subscribeTimeout) {
		return fmt.Errorf("mqtt subscription timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes the subscription on topic
func (c *Client) Unsubscribe(topic string) error {
	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(c.subscribeTimeout) {
		return fmt.Errorf("mqtt unsubscribe timeout for topic %s", topic)
	}
	return token.Error()
}

// Close disconnects from the MQTT broker
func (c *Client) Close() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(c.disconnectTimeout)
	}
	return nil
}

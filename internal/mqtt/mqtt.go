// Package mqtt publishes events to an MQTT broker, one JSON message per
// event on a single topic.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/config"
	"github.com/Guliveer/dstat-agent/internal/models"
)

const (
	connectTimeout = 10 * time.Second

	// disconnectQuiesce is how long Close waits for in-flight publishes, in ms.
	disconnectQuiesce = 250
)

// Client is the MQTT output sink.
type Client struct {
	client paho.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// New connects to the broker. clientID is used when the config leaves it
// empty.
func New(cfg config.MQTTConfig, clientID string, logger *zap.Logger) (*Client, error) {
	if cfg.ClientID != "" {
		clientID = cfg.ClientID
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	logger = logger.Named("mqtt")
	logger.Info("Connected to MQTT broker",
		zap.String("broker", cfg.Broker),
		zap.String("topic", cfg.Topic))

	return &Client{client: client, topic: cfg.Topic, qos: cfg.QoS, logger: logger}, nil
}

// Name returns the sink identifier.
func (c *Client) Name() string { return "mqtt" }

// Write publishes every event and waits for each publish to complete.
func (c *Client) Write(ctx context.Context, events []models.Event) error {
	payloads, err := encodeEvents(events)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		token := c.client.Publish(c.topic, c.qos, false, p)
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				return fmt.Errorf("publish to %s: %w", c.topic, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.logger.Debug("Published events", zap.Int("count", len(payloads)))
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}

func encodeEvents(events []models.Event) ([][]byte, error) {
	out := make([][]byte, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal event %s: %w", ev.Stat, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Package valkey pushes event batches onto a Valkey (Redis-compatible)
// list, one JSON document per element.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/config"
	"github.com/Guliveer/dstat-agent/internal/models"
)

// Client is the Valkey output sink.
type Client struct {
	client valkey.Client
	key    string
	logger *zap.Logger
}

// New connects to Valkey and checks the connection with PING.
func New(ctx context.Context, cfg config.ValkeyConfig, logger *zap.Logger) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	pong := client.Do(ctx, client.B().Ping().Build())
	if err := pong.Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	logger = logger.Named("valkey")
	logger.Info("Connected to Valkey",
		zap.String("address", cfg.Address),
		zap.String("key", cfg.Key))

	return &Client{client: client, key: cfg.Key, logger: logger}, nil
}

// Name returns the sink identifier.
func (c *Client) Name() string { return "valkey" }

// Write appends every event to the list with a single RPUSH.
func (c *Client) Write(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	elements, err := encodeEvents(events)
	if err != nil {
		return err
	}

	cmd := c.client.B().Rpush().Key(c.key).Element(elements...).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("rpush %s: %w", c.key, err)
	}
	c.logger.Debug("Pushed events", zap.Int("events", len(events)))
	return nil
}

// Close releases the connection.
func (c *Client) Close() {
	c.client.Close()
}

func encodeEvents(events []models.Event) ([]string, error) {
	out := make([]string, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal event %s: %w", ev.Stat, err)
		}
		out[i] = string(data)
	}
	return out, nil
}

// Package kafka builds the franz-go client used to mirror audit events.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config holds the producer settings.
type Config struct {
	Brokers           []string
	ClientID          string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
	// MaxBufferedRecords caps unacknowledged records; once full, TryProduce
	// fails fast with kgo.ErrMaxBuffered instead of waiting for space.
	MaxBufferedRecords int
}

const defaultMaxBufferedRecords = 10_000

// Client wraps a franz-go client configured for producing.
type Client struct {
	*kgo.Client
	cfg    Config
	logger *slog.Logger
}

// New connects to the brokers and verifies connectivity with a ping.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "clubgate"
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 3
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}
	if cfg.MaxBufferedRecords <= 0 {
		cfg.MaxBufferedRecords = defaultMaxBufferedRecords
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RecordDeliveryTimeout(30*time.Second),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cl.Ping(pingCtx); err != nil {
		cl.Close()
		return nil, fmt.Errorf("kafka: ping brokers: %w", err)
	}

	logger.InfoContext(ctx, "kafka client connected", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &Client{Client: cl, cfg: cfg, logger: logger}, nil
}

// EnsureTopic creates the configured topic if it does not exist yet.
func (c *Client) EnsureTopic(ctx context.Context) error {
	adm := kadm.NewClient(c.Client)
	resp, err := adm.CreateTopic(ctx, c.cfg.Partitions, c.cfg.ReplicationFactor, nil, c.cfg.Topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", c.cfg.Topic, err)
	}
	if resp.Err != nil {
		if errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return nil
		}
		return fmt.Errorf("kafka: create topic %s: %w", c.cfg.Topic, resp.Err)
	}
	c.logger.InfoContext(ctx, "kafka topic created",
		"topic", c.cfg.Topic,
		"partitions", c.cfg.Partitions,
	)
	return nil
}

// Close flushes buffered records and closes the client.
func (c *Client) Close(ctx context.Context) {
	if err := c.Flush(ctx); err != nil {
		c.logger.WarnContext(ctx, "kafka flush on close failed", "error", err)
	}
	c.Client.Close()
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"
)

var ErrMalformedMessage = errors.New("malformed stream message")

// StreamClient is the subset of *redis.Client the consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler receives one decoded OFFER_EXTRACTED event.
type Handler func(ctx context.Context, payload *OfferExtractedPayload) error

type ConsumerConfig struct {
	Stream     string
	Group      string
	Name       string
	Block      time.Duration
	Count      int64
	RetryDelay time.Duration
}

// Consumer reads a stream as part of a consumer group. Messages are acked only
// after the handler succeeds, so failed ones stay pending for redelivery.
type Consumer struct {
	client  StreamClient
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count == 0 {
		cfg.Count = 10
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "consumer", "stream", cfg.Stream, "group", cfg.Group),
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.Count,
			Block:    c.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	payload, err := DecodeMessage(msg)
	switch {
	case err != nil:
		// A message that can never decode is acked so it does not block the group.
		c.logger.Error("dropping message", "id", msg.ID, "error", err)
	case payload == nil:
		c.logger.Debug("skipping event", "id", msg.ID, "event_type", msg.Values["event_type"])
	default:
		if err := c.handler(ctx, payload); err != nil {
			c.logger.Error("failed to handle message", "id", msg.ID, "offer_id", payload.OfferID, "error", err)
			return
		}
		c.logger.Info("message handled", "id", msg.ID, "offer_id", payload.OfferID, "records", len(payload.Records))
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
	}
}

// DecodeMessage extracts the OFFER_EXTRACTED payload from a relayed stream
// message. Other event types yield nil without error.
func DecodeMessage(msg redis.XMessage) (*OfferExtractedPayload, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok || !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: %s has no data envelope", ErrMalformedMessage, msg.ID)
	}

	envelope := gjson.Parse(raw)
	if envelope.Get("type").String() != string(EventTypeOfferExtracted) {
		return nil, nil
	}

	body := envelope.Get("payload")
	if !body.IsObject() {
		return nil, fmt.Errorf("%w: %s has no payload object", ErrMalformedMessage, msg.ID)
	}

	var payload OfferExtractedPayload
	if err := json.Unmarshal([]byte(body.Raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if payload.OfferID == "" {
		return nil, fmt.Errorf("%w: %s has no offer id", ErrMalformedMessage, msg.ID)
	}
	return &payload, nil
}

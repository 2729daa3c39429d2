package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-realtime/internal/models"

	"github.com/go-redis/redis/v8"
)

const presenceKeyPrefix = "presence:"

type Client struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger
}

// NewClient connects to Redis. channel is the pub/sub channel carrying
// encoded domain events.
func NewClient(ctx context.Context, redisURL, channel string, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info("[REDIS] Connected to Redis", "addr", opt.Addr, "channel", channel)

	return &Client{
		rdb:     rdb,
		channel: channel,
		logger:  logger,
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish sends event to every subscribed process. Failures are logged;
// the write that produced the event has already been persisted.
func (c *Client) Publish(ctx context.Context, event models.Event) {
	if err := c.PublishEvent(ctx, event); err != nil {
		c.logger.Error("[REDIS] Failed to publish event", "type", event.EventName(), "channel", c.channel, "error", err)
	}
}

func (c *Client) PublishEvent(ctx context.Context, event models.Event) error {
	payload, err := models.Encode(event, time.Now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.EventName(), err)
	}

	if err := c.rdb.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventName(), err)
	}
	return nil
}

// SetUserStatus mirrors presence into a hash so other services can read it
// without the database.
func (c *Client) SetUserStatus(ctx context.Context, userID string, status models.PresenceStatus, lastSeenAt time.Time) error {
	err := c.rdb.HSet(ctx, presenceKey(userID),
		"status", string(status),
		"last_seen_at", lastSeenAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("mirror presence for %s: %w", userID, err)
	}
	return nil
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

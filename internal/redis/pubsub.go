package redis

import (
	"context"
	"fmt"

	"chat-realtime/internal/models"
)

// EventSink receives events decoded from the pub/sub channel.
type EventSink interface {
	Publish(ctx context.Context, event models.Event)
}

// Subscribe forwards every event on the events channel to sink until ctx
// is cancelled. A single channel keeps one publisher's events in order.
func (c *Client) Subscribe(ctx context.Context, sink EventSink) error {
	c.logger.Info("[REDIS] Starting Redis pub/sub subscription...", "channel", c.channel)

	pubsub := c.rdb.Subscribe(ctx, c.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.channel, err)
	}

	c.logger.Info("[REDIS] Subscription confirmed, listening for events...")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("[REDIS] Subscription stopped")
			return nil

		case msg, ok := <-ch:
			if !ok {
				c.logger.Info("[REDIS] Redis pub/sub channel closed")
				return nil
			}
			c.forward(ctx, sink, msg.Channel, msg.Payload)
		}
	}
}

func (c *Client) forward(ctx context.Context, sink EventSink, channel, payload string) bool {
	event, err := models.Decode([]byte(payload))
	if err != nil {
		c.logger.Error("[REDIS] Error decoding event", "channel", channel, "error", err)
		return false
	}

	c.logger.Debug("[REDIS] Event received", "type", event.EventName(), "channel", channel)
	sink.Publish(ctx, event)
	return true
}

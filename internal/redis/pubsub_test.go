package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"chat-realtime/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []models.Event
}

func (s *captureSink) Publish(ctx context.Context, event models.Event) {
	s.events = append(s.events, event)
}

func testClient() *Client {
	return &Client{
		channel: "realtime:events",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestForwardDecodesEvents(t *testing.T) {
	c := testClient()
	sink := &captureSink{}

	sent := []models.Event{
		models.NewMessage{ChannelID: 7, Message: models.Message{ID: "m1", ChannelID: 7, AuthorID: "alice", Content: "hi"}},
		models.ReactionChanged{Room: models.ChannelRoom(7), MessageID: "m1", UserID: "bob", Emoji: "👍", Added: true},
		models.ReactionChanged{Room: models.ChannelRoom(7), MessageID: "m1", UserID: "bob", Emoji: "👍"},
	}
	for _, ev := range sent {
		payload, err := models.Encode(ev, time.Now())
		require.NoError(t, err)
		assert.True(t, c.forward(context.Background(), sink, c.channel, string(payload)))
	}

	require.Len(t, sink.events, 3)
	assert.Equal(t, models.EventMessageNew, sink.events[0].EventName())
	assert.Equal(t, models.EventReactionAdded, sink.events[1].EventName())
	assert.Equal(t, models.EventReactionRemoved, sink.events[2].EventName())
	assert.Equal(t, "hi", sink.events[0].(models.NewMessage).Message.Content)
}

func TestForwardSkipsMalformedPayloads(t *testing.T) {
	c := testClient()
	sink := &captureSink{}

	assert.False(t, c.forward(context.Background(), sink, c.channel, "{oops"))
	assert.False(t, c.forward(context.Background(), sink, c.channel, `{"type":"unknown","timestamp":0,"data":{}}`))
	assert.Empty(t, sink.events)
}

func TestPresenceKey(t *testing.T) {
	assert.Equal(t, "presence:alice", presenceKey("alice"))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url", "realtime:events", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

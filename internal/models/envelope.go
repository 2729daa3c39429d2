package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Envelope is the frame written to websocket clients and to the Redis
// events channel.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type rawEnvelope struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Encode wraps an event in an envelope stamped with now (unix millis).
func Encode(event Event, now time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      event.EventName(),
		Timestamp: now.UnixMilli(),
		Data:      event,
	})
}

// EncodeFrame builds a non-event frame such as an ack or an error.
func EncodeFrame(frameType string, data interface{}, now time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      frameType,
		Timestamp: now.UnixMilli(),
		Data:      data,
	})
}

// Decode parses an envelope produced by Encode back into a typed event.
func Decode(payload []byte) (Event, error) {
	var env rawEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		event Event
		err   error
	)
	switch env.Type {
	case EventMessageNew:
		var e NewMessage
		err = json.Unmarshal(env.Data, &e)
		event = e
	case EventMessageDirect:
		var e NewDirectMessage
		err = json.Unmarshal(env.Data, &e)
		event = e
	case EventPresenceChanged:
		var e PresenceChanged
		err = json.Unmarshal(env.Data, &e)
		event = e
	case EventReactionAdded, EventReactionRemoved:
		var e ReactionChanged
		err = json.Unmarshal(env.Data, &e)
		e.Added = env.Type == EventReactionAdded
		event = e
	case EventThreadReply:
		var e ThreadReplyAdded
		err = json.Unmarshal(env.Data, &e)
		event = e
	case EventTypingStart, EventTypingStop:
		var e TypingChanged
		err = json.Unmarshal(env.Data, &e)
		e.Typing = env.Type == EventTypingStart
		event = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return event, nil
}

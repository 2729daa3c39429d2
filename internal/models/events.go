package models

import (
	"time"
)

// Event names as seen by websocket clients.
const (
	EventMessageNew      = "message:new"
	EventMessageDirect   = "message:direct"
	EventPresenceChanged = "presence:changed"
	EventReactionAdded   = "reaction:added"
	EventReactionRemoved = "reaction:removed"
	EventThreadReply     = "thread:reply"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
)

// Event is an immutable, fully resolved domain event ready for fan-out.
type Event interface {
	EventName() string

	// Rooms returns the target rooms. A nil slice targets every connection.
	Rooms() []RoomKey
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Message is the delivered shape of a chat message, channel or direct.
type Message struct {
	ID             string    `json:"id"`
	ChannelID      int64     `json:"channelId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	ParentID       string    `json:"parentId,omitempty"`
	AuthorID       string    `json:"authorId"`
	Content        string    `json:"content"`
	ReplyCount     int       `json:"replyCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Room returns the room a message is delivered to.
func (m Message) Room() RoomKey {
	if m.ConversationID != "" {
		return ConversationRoom(m.ConversationID)
	}
	return ChannelRoom(m.ChannelID)
}

type NewMessage struct {
	ChannelID int64   `json:"channelId"`
	Message   Message `json:"message"`
}

func (e NewMessage) EventName() string { return EventMessageNew }
func (e NewMessage) Rooms() []RoomKey  { return []RoomKey{ChannelRoom(e.ChannelID)} }

type NewDirectMessage struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

func (e NewDirectMessage) EventName() string { return EventMessageDirect }
func (e NewDirectMessage) Rooms() []RoomKey {
	return []RoomKey{ConversationRoom(e.ConversationID)}
}

// PresenceChanged is delivered to every connection.
type PresenceChanged struct {
	UserID     string         `json:"userId"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"lastSeenAt"`
}

func (e PresenceChanged) EventName() string { return EventPresenceChanged }
func (e PresenceChanged) Rooms() []RoomKey  { return nil }

// ReactionChanged carries enough to apply either the add or the remove.
type ReactionChanged struct {
	Room      RoomKey `json:"room"`
	MessageID string  `json:"messageId"`
	UserID    string  `json:"userId"`
	Emoji     string  `json:"emoji"`
	Added     bool    `json:"added"`
}

func (e ReactionChanged) EventName() string {
	if e.Added {
		return EventReactionAdded
	}
	return EventReactionRemoved
}

func (e ReactionChanged) Rooms() []RoomKey { return []RoomKey{e.Room} }

type ThreadReplyAdded struct {
	Room       RoomKey `json:"room"`
	ParentID   string  `json:"parentId"`
	Reply      Message `json:"reply"`
	ReplyCount int     `json:"replyCount"`
}

func (e ThreadReplyAdded) EventName() string { return EventThreadReply }
func (e ThreadReplyAdded) Rooms() []RoomKey  { return []RoomKey{e.Room} }

type TypingChanged struct {
	Room     RoomKey `json:"room"`
	UserID   string  `json:"userId"`
	ThreadID string  `json:"threadId,omitempty"`
	Typing   bool    `json:"typing"`
}

func (e TypingChanged) EventName() string {
	if e.Typing {
		return EventTypingStart
	}
	return EventTypingStop
}

func (e TypingChanged) Rooms() []RoomKey { return []RoomKey{e.Room} }

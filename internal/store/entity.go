package store

import (
	"time"

	"chat-realtime/internal/models"
)

// UserPresence is the durable mirror of a user's presence.
type UserPresence struct {
	UserID     string                `gorm:"type:varchar(128);primaryKey" json:"userId"`
	Status     models.PresenceStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	LastSeenAt time.Time             `json:"lastSeenAt"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

func (UserPresence) TableName() string {
	return "user_presence"
}

type ChannelMember struct {
	ChannelID int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID    string    `gorm:"type:varchar(128);primaryKey"`
	JoinedAt  time.Time `gorm:"autoCreateTime"`
}

// Conversation is a direct-message pair. UserA sorts before UserB.
type Conversation struct {
	ID        string `gorm:"type:varchar(300);primaryKey"`
	UserA     string `gorm:"type:varchar(128);not null;index"`
	UserB     string `gorm:"type:varchar(128);not null;index"`
	CreatedAt time.Time
}

// Message belongs to exactly one of a channel or a conversation.
type Message struct {
	ID             string  `gorm:"type:varchar(36);primaryKey"`
	ChannelID      *int64  `gorm:"index"`
	ConversationID *string `gorm:"type:varchar(300);index"`
	ParentID       *string `gorm:"type:varchar(36);index"`
	AuthorID       string  `gorm:"type:varchar(128);not null"`
	Content        string  `gorm:"type:text;not null"`
	ReplyCount     int     `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

// Room returns the room the message is delivered to.
func (m *Message) Room() models.RoomKey {
	return m.ToModel().Room()
}

// ToModel converts the row into its delivered shape.
func (m *Message) ToModel() models.Message {
	out := models.Message{
		ID:         m.ID,
		AuthorID:   m.AuthorID,
		Content:    m.Content,
		ReplyCount: m.ReplyCount,
		CreatedAt:  m.CreatedAt,
	}
	if m.ChannelID != nil {
		out.ChannelID = *m.ChannelID
	}
	if m.ConversationID != nil {
		out.ConversationID = *m.ConversationID
	}
	if m.ParentID != nil {
		out.ParentID = *m.ParentID
	}
	return out
}

type Reaction struct {
	MessageID string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(128);primaryKey"`
	Emoji     string    `gorm:"type:varchar(64);primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*Message, error) {
	var message Message
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// CreateReply stores reply under parentID and bumps the parent's reply
// count. The reply inherits the parent's channel or conversation. It
// returns the updated parent.
func (r *MessageRepository) CreateReply(ctx context.Context, parentID string, reply *Message) (*Message, error) {
	var parent Message

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&parent, "id = ?", parentID).Error; err != nil {
			return notFound(err)
		}
		if parent.ParentID != nil {
			// Threads are one level deep; replies attach to the root.
			return r.replyToRoot(tx, *parent.ParentID, reply, &parent)
		}
		return r.insertReply(tx, reply, &parent)
	})
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

func (r *MessageRepository) replyToRoot(tx *gorm.DB, rootID string, reply *Message, parent *Message) error {
	var root Message
	if err := tx.First(&root, "id = ?", rootID).Error; err != nil {
		return notFound(err)
	}
	*parent = root
	return r.insertReply(tx, reply, parent)
}

func (r *MessageRepository) insertReply(tx *gorm.DB, reply *Message, parent *Message) error {
	parentID := parent.ID
	reply.ParentID = &parentID
	reply.ChannelID = parent.ChannelID
	reply.ConversationID = parent.ConversationID

	if err := tx.Create(reply).Error; err != nil {
		return fmt.Errorf("failed to create reply: %w", err)
	}

	err := tx.Model(&Message{}).
		Where("id = ?", parent.ID).
		UpdateColumn("reply_count", gorm.Expr("reply_count + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("failed to update reply count: %w", err)
	}

	var updated Message
	if err := tx.First(&updated, "id = ?", parentID).Error; err != nil {
		return err
	}
	*parent = updated
	return nil
}

// ToggleReaction removes the reaction if the user already left it and adds
// it otherwise. It reports whether the reaction is now present, along with
// the message it belongs to.
func (r *MessageRepository) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, *Message, error) {
	var (
		message Message
		added   bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&message, "id = ?", messageID).Error; err != nil {
			return notFound(err)
		}

		result := tx.Delete(&Reaction{}, "message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji)
		if result.Error != nil {
			return fmt.Errorf("failed to remove reaction: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}

		reaction := &Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
		if err := tx.Create(reaction).Error; err != nil {
			return fmt.Errorf("failed to add reaction: %w", err)
		}
		added = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return added, &message, nil
}

func (r *MessageRepository) ReactionCount(ctx context.Context, messageID, emoji string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Reaction{}).
		Where("message_id = ? AND emoji = ?", messageID, emoji).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count reactions: %w", err)
	}
	return count, nil
}

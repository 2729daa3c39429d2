package store

import (
	"context"
	"errors"
	"fmt"

	"chat-realtime/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) AddChannelMember(ctx context.Context, channelID int64, userID string) error {
	member := &ChannelMember{ChannelID: channelID, UserID: userID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error
	if err != nil {
		return fmt.Errorf("failed to add member %s to channel %d: %w", userID, channelID, err)
	}
	return nil
}

func (r *MembershipRepository) RemoveChannelMember(ctx context.Context, channelID int64, userID string) error {
	result := r.db.WithContext(ctx).Delete(&ChannelMember{}, "channel_id = ? AND user_id = ?", channelID, userID)
	if result.Error != nil {
		return fmt.Errorf("failed to remove member %s from channel %d: %w", userID, channelID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CurrentMembers returns the users allowed to join room. Conversation
// members are the stored participants, or the two ids encoded in the
// conversation id before its first message.
func (r *MembershipRepository) CurrentMembers(ctx context.Context, room models.RoomKey) (map[string]struct{}, error) {
	members := make(map[string]struct{})

	if conversationID, ok := room.ConversationID(); ok {
		var conversation Conversation
		err := r.db.WithContext(ctx).First(&conversation, "id = ?", conversationID).Error
		if err == nil {
			members[conversation.UserA] = struct{}{}
			members[conversation.UserB] = struct{}{}
			return members, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
		}

		a, b, ok := models.ConversationParticipants(conversationID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrInvalidRoomKey, room)
		}
		members[a] = struct{}{}
		members[b] = struct{}{}
		return members, nil
	}

	channelID, ok := room.ChannelID()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidRoomKey, room)
	}

	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&ChannelMember{}).
		Where("channel_id = ?", channelID).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load members of %s: %w", room, err)
	}

	for _, id := range userIDs {
		members[id] = struct{}{}
	}
	return members, nil
}

func (r *MembershipRepository) IsMember(ctx context.Context, room models.RoomKey, userID string) (bool, error) {
	members, err := r.CurrentMembers(ctx, room)
	if err != nil {
		return false, err
	}
	_, ok := members[userID]
	return ok, nil
}

// EnsureConversation returns the conversation between two users, creating
// it on first use.
func (r *MembershipRepository) EnsureConversation(ctx context.Context, userA, userB string) (*Conversation, error) {
	id := models.ConversationID(userA, userB)
	first, second := userA, userB
	if second < first {
		first, second = second, first
	}

	conversation := Conversation{ID: id, UserA: first, UserB: second}
	err := r.db.WithContext(ctx).
		Where(Conversation{ID: id}).
		FirstOrCreate(&conversation).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure conversation %s: %w", id, err)
	}
	return &conversation, nil
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"chat-realtime/internal/models"
	"chat-realtime/internal/store"

	"github.com/google/uuid"
)

const (
	maxContentLength = 4000
	maxEmojiLength   = 64
)

var (
	ErrEmptyContent     = errors.New("message content is empty")
	ErrContentTooLong   = errors.New("message content is too long")
	ErrNotMember        = errors.New("user is not a member of this room")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrInvalidEmoji     = errors.New("invalid emoji")

	// ErrConversationMismatch means the stored conversation belongs to a
	// different pair of users than the one requested.
	ErrConversationMismatch = errors.New("conversation participants do not match")
)

// Publisher hands events to the realtime layer, in process or over Redis.
type Publisher interface {
	Publish(ctx context.Context, event models.Event)
}

type MembershipStore interface {
	AddChannelMember(ctx context.Context, channelID int64, userID string) error
	IsMember(ctx context.Context, room models.RoomKey, userID string) (bool, error)
	EnsureConversation(ctx context.Context, userA, userB string) (*store.Conversation, error)
}

type MessageStore interface {
	Create(ctx context.Context, message *store.Message) error
	FindByID(ctx context.Context, id string) (*store.Message, error)
	CreateReply(ctx context.Context, parentID string, reply *store.Message) (*store.Message, error)
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, *store.Message, error)
}

// Service performs chat writes and publishes the resulting events once the
// write has been persisted.
type Service struct {
	members   MembershipStore
	messages  MessageStore
	publisher Publisher
	logger    *slog.Logger
}

func NewService(members MembershipStore, messages MessageStore, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		members:   members,
		messages:  messages,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) JoinChannel(ctx context.Context, userID string, channelID int64) error {
	return s.members.AddChannelMember(ctx, channelID, userID)
}

func (s *Service) SendChannelMessage(ctx context.Context, userID string, channelID int64, content string) (models.Message, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.requireMember(ctx, models.ChannelRoom(channelID), userID); err != nil {
		return models.Message{}, err
	}

	row := &store.Message{
		ID:        uuid.NewString(),
		ChannelID: &channelID,
		AuthorID:  userID,
		Content:   content,
	}
	if err := s.messages.Create(ctx, row); err != nil {
		return models.Message{}, err
	}

	msg := row.ToModel()
	s.publisher.Publish(ctx, models.NewMessage{ChannelID: channelID, Message: msg})
	s.logger.Debug("[CHAT] Channel message sent", "message", msg.ID, "channel", channelID, "user", userID)
	return msg, nil
}

func (s *Service) SendDirectMessage(ctx context.Context, fromUserID, toUserID, content string) (models.Message, error) {
	if fromUserID == toUserID {
		return models.Message{}, ErrSelfConversation
	}
	content, err := normalizeContent(content)
	if err != nil {
		return models.Message{}, err
	}

	conversation, err := s.members.EnsureConversation(ctx, fromUserID, toUserID)
	if err != nil {
		return models.Message{}, err
	}
	if !conversationOf(conversation, fromUserID, toUserID) {
		s.logger.Error("[CHAT] Conversation resolved to another pair", "conversation", conversation.ID,
			"from", fromUserID, "to", toUserID)
		return models.Message{}, ErrConversationMismatch
	}

	row := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: &conversation.ID,
		AuthorID:       fromUserID,
		Content:        content,
	}
	if err := s.messages.Create(ctx, row); err != nil {
		return models.Message{}, err
	}

	msg := row.ToModel()
	s.publisher.Publish(ctx, models.NewDirectMessage{ConversationID: conversation.ID, Message: msg})
	s.logger.Debug("[CHAT] Direct message sent", "message", msg.ID, "conversation", conversation.ID)
	return msg, nil
}

// ToggleReaction adds the reaction if absent and removes it otherwise. It
// returns the change as broadcast, with the emoji as stored.
func (s *Service) ToggleReaction(ctx context.Context, userID, messageID, emoji string) (models.ReactionChanged, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return models.ReactionChanged{}, ErrInvalidEmoji
	}

	target, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return models.ReactionChanged{}, err
	}
	room := target.Room()
	if err := s.requireMember(ctx, room, userID); err != nil {
		return models.ReactionChanged{}, err
	}

	added, _, err := s.messages.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return models.ReactionChanged{}, err
	}

	change := models.ReactionChanged{
		Room:      room,
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		Added:     added,
	}
	s.publisher.Publish(ctx, change)
	return change, nil
}

func (s *Service) ReplyInThread(ctx context.Context, userID, parentID, content string) (models.Message, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return models.Message{}, err
	}

	target, err := s.messages.FindByID(ctx, parentID)
	if err != nil {
		return models.Message{}, err
	}
	room := target.Room()
	if err := s.requireMember(ctx, room, userID); err != nil {
		return models.Message{}, err
	}

	reply := &store.Message{
		ID:       uuid.NewString(),
		AuthorID: userID,
		Content:  content,
	}
	root, err := s.messages.CreateReply(ctx, parentID, reply)
	if err != nil {
		return models.Message{}, err
	}

	msg := reply.ToModel()
	s.publisher.Publish(ctx, models.ThreadReplyAdded{
		Room:       room,
		ParentID:   root.ID,
		Reply:      msg,
		ReplyCount: root.ReplyCount,
	})
	return msg, nil
}

func (s *Service) requireMember(ctx context.Context, room models.RoomKey, userID string) error {
	ok, err := s.members.IsMember(ctx, room, userID)
	if err != nil {
		return fmt.Errorf("check membership of %s: %w", room, err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func conversationOf(conversation *store.Conversation, userA, userB string) bool {
	if userB < userA {
		userA, userB = userB, userA
	}
	return conversation.UserA == userA && conversation.UserB == userB
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

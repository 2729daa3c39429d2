package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/chat"
	"chat-realtime/internal/models"
	"chat-realtime/internal/store"

	"github.com/gin-gonic/gin"
)

type ChatService interface {
	JoinChannel(ctx context.Context, userID string, channelID int64) error
	SendChannelMessage(ctx context.Context, userID string, channelID int64, content string) (models.Message, error)
	SendDirectMessage(ctx context.Context, fromUserID, toUserID, content string) (models.Message, error)
	ToggleReaction(ctx context.Context, userID, messageID, emoji string) (models.ReactionChanged, error)
	ReplyInThread(ctx context.Context, userID, parentID, content string) (models.Message, error)
}

type MessageHandler struct {
	chat   ChatService
	logger *slog.Logger
}

func NewMessageHandler(chat ChatService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{chat: chat, logger: logger}
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type reactionResponse struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	Added     bool   `json:"added"`
}

func (h *MessageHandler) JoinChannel(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	if err := h.chat.JoinChannel(c.Request.Context(), auth.UserID(c), channelID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": models.ChannelRoom(channelID)})
}

func (h *MessageHandler) SendChannelMessage(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.SendChannelMessage(c.Request.Context(), auth.UserID(c), channelID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) SendDirectMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.SendDirectMessage(c.Request.Context(), auth.UserID(c), c.Param("userId"), req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	change, err := h.chat.ToggleReaction(c.Request.Context(), auth.UserID(c), c.Param("messageId"), req.Emoji)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reactionResponse{MessageID: change.MessageID, Emoji: change.Emoji, Added: change.Added})
}

func (h *MessageHandler) ReplyInThread(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.ReplyInThread(c.Request.Context(), auth.UserID(c), c.Param("messageId"), req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrContentTooLong),
		errors.Is(err, chat.ErrInvalidEmoji),
		errors.Is(err, chat.ErrSelfConversation):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrNotMember):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("[HTTP] Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func channelParam(c *gin.Context) (int64, bool) {
	channelID, err := strconv.ParseInt(c.Param("channelId"), 10, 64)
	if err != nil || channelID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return 0, false
	}
	return channelID, true
}

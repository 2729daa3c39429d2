package models

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	channelPrefix      = "channel:"
	conversationPrefix = "conversation:"

	// conversationSeparator joins the two sorted, escaped participant ids of
	// a direct-message conversation. Escaping keeps it out of the ids.
	conversationSeparator = ":"
)

var ErrInvalidRoomKey = errors.New("invalid room key")

// RoomKey identifies a broadcast scope: "channel:<id>" or "conversation:<id>".
type RoomKey string

func (k RoomKey) String() string {
	return string(k)
}

func ChannelRoom(channelID int64) RoomKey {
	return RoomKey(channelPrefix + strconv.FormatInt(channelID, 10))
}

func ConversationRoom(conversationID string) RoomKey {
	return RoomKey(conversationPrefix + conversationID)
}

// ConversationID returns the same id no matter which participant starts
// the conversation.
func ConversationID(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return url.QueryEscape(ids[0]) + conversationSeparator + url.QueryEscape(ids[1])
}

// ConversationParticipants splits a conversation id back into its two users.
func ConversationParticipants(conversationID string) (string, string, bool) {
	rawA, rawB, ok := strings.Cut(conversationID, conversationSeparator)
	if !ok || rawA == "" || rawB == "" {
		return "", "", false
	}
	a, errA := url.QueryUnescape(rawA)
	b, errB := url.QueryUnescape(rawB)
	if errA != nil || errB != nil || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// ParseRoomKey validates a room key received from a client.
func ParseRoomKey(raw string) (RoomKey, error) {
	switch {
	case strings.HasPrefix(raw, channelPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(raw, channelPrefix), 10, 64)
		if err != nil || id <= 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
		}
		return ChannelRoom(id), nil

	case strings.HasPrefix(raw, conversationPrefix):
		id := strings.TrimPrefix(raw, conversationPrefix)
		if _, _, ok := ConversationParticipants(id); !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
		}
		return ConversationRoom(id), nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
}

// ChannelID returns the channel id of a channel room.
func (k RoomKey) ChannelID() (int64, bool) {
	s := string(k)
	if !strings.HasPrefix(s, channelPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(s, channelPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ConversationID returns the conversation id of a conversation room.
func (k RoomKey) ConversationID() (string, bool) {
	s := string(k)
	if !strings.HasPrefix(s, conversationPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, conversationPrefix), true
}

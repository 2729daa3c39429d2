package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, ConversationID("bob", "alice"), ConversationID("alice", "bob"))
	assert.Equal(t, "alice:bob", ConversationID("bob", "alice"))

	a, b, ok := ConversationParticipants("alice:bob")
	require.True(t, ok)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)
}

func TestConversationIDKeepsPairsWithSeparatorApart(t *testing.T) {
	first := ConversationID("a:b", "c")
	second := ConversationID("a", "b:c")
	assert.NotEqual(t, first, second)

	tests := []struct {
		userA, userB string
	}{
		{userA: "a:b", userB: "c"},
		{userA: "a", userB: "b:c"},
		{userA: "urn:user:1", userB: "urn:user:2"},
		{userA: "100%", userB: "x%3Ay"},
	}

	for _, tt := range tests {
		id := ConversationID(tt.userA, tt.userB)
		a, b, ok := ConversationParticipants(id)
		require.True(t, ok, id)
		assert.Equal(t, tt.userA, a, id)
		assert.Equal(t, tt.userB, b, id)

		room, err := ParseRoomKey(ConversationRoom(id).String())
		require.NoError(t, err)
		assert.Equal(t, ConversationRoom(id), room)
	}
}

func TestParseRoomKey(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    RoomKey
		wantErr bool
	}{
		{name: "channel", raw: "channel:7", want: ChannelRoom(7)},
		{name: "conversation", raw: "conversation:alice:bob", want: ConversationRoom("alice:bob")},
		{name: "channel not numeric", raw: "channel:general", wantErr: true},
		{name: "channel zero", raw: "channel:0", wantErr: true},
		{name: "conversation single user", raw: "conversation:alice", wantErr: true},
		{name: "unknown scope", raw: "team:3", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoomKey(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRoomKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoomKeyAccessors(t *testing.T) {
	id, ok := ChannelRoom(42).ChannelID()
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = ConversationRoom("a:b").ChannelID()
	assert.False(t, ok)

	conv, ok := ConversationRoom("a:b").ConversationID()
	require.True(t, ok)
	assert.Equal(t, "a:b", conv)
}

func TestEventRooms(t *testing.T) {
	assert.Equal(t, []RoomKey{"channel:7"}, NewMessage{ChannelID: 7}.Rooms())
	assert.Equal(t, []RoomKey{"conversation:a:b"}, NewDirectMessage{ConversationID: "a:b"}.Rooms())
	assert.Nil(t, PresenceChanged{UserID: "a"}.Rooms())

	added := ReactionChanged{Room: ChannelRoom(1), Added: true}
	removed := ReactionChanged{Room: ChannelRoom(1)}
	assert.Equal(t, EventReactionAdded, added.EventName())
	assert.Equal(t, EventReactionRemoved, removed.EventName())
}

func TestEncodeWritesEnvelope(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	payload, err := Encode(NewMessage{ChannelID: 7, Message: Message{ID: "m1", ChannelID: 7, AuthorID: "alice", Content: "hi"}}, now)
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &frame))
	assert.Equal(t, EventMessageNew, frame["type"])
	assert.EqualValues(t, 1700000000123, frame["timestamp"])

	data := frame["data"].(map[string]interface{})
	assert.EqualValues(t, 7, data["channelId"])
}

func TestDecodeRestoresTypedEvent(t *testing.T) {
	original := ReactionChanged{Room: ChannelRoom(3), MessageID: "m1", UserID: "bob", Emoji: "👍", Added: false}
	payload, err := Encode(original, time.Now())
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"message:exploded","timestamp":1,"data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

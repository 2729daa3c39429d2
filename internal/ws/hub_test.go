package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/models"
	"chat-realtime/internal/realtime"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenIsUser accepts any token except "bad" and treats it as the user id.
type tokenIsUser struct{}

func (tokenIsUser) ValidateToken(token string) (*auth.Claims, error) {
	if token == "bad" {
		return nil, errors.New("invalid token")
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: token}}, nil
}

type staticMembers map[models.RoomKey][]string

func (s staticMembers) CurrentMembers(ctx context.Context, room models.RoomKey) (map[string]struct{}, error) {
	members := make(map[string]struct{})
	for _, userID := range s[room] {
		members[userID] = struct{}{}
	}
	return members, nil
}

type statusWrite struct {
	userID string
	status models.PresenceStatus
}

type memoryStore struct {
	mu     sync.Mutex
	writes []statusWrite
}

func (s *memoryStore) SetUserStatus(userID string, status models.PresenceStatus, lastSeenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, statusWrite{userID: userID, status: status})
	return nil
}

func (s *memoryStore) snapshot() []statusWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]statusWrite(nil), s.writes...)
}

type testServer struct {
	hub   *Hub
	store *memoryStore
	url   string
}

func newTestServer(t *testing.T, debounce time.Duration) *testServer {
	t.Helper()

	st := &memoryStore{}
	hub := NewHub(Options{
		Store:    st,
		Debounce: debounce,
		Authorizer: staticMembers{
			models.ChannelRoom(7): {"alice", "bob"},
		},
		Validator: tokenIsUser{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})

	return &testServer{
		hub:   hub,
		store: st,
		url:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (s *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url+"?token="+userID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readFrame skips frames until one of the wanted type arrives.
func readFrame(t *testing.T, conn *websocket.Conn, frameType string) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", frameType)

		var f frame
		require.NoError(t, json.Unmarshal(payload, &f))
		if f.Type == frameType {
			return f
		}
	}
}

// collectUntil returns the types of every frame up to and including the
// first one matching stop.
func collectUntil(t *testing.T, conn *websocket.Conn, stop func(frame) bool) []string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var types []string
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var f frame
		require.NoError(t, json.Unmarshal(payload, &f))
		types = append(types, f.Type)
		if stop(f) {
			return types
		}
	}
}

func presenceOf(userID string) func(frame) bool {
	return func(f frame) bool {
		if f.Type != models.EventPresenceChanged {
			return false
		}
		var ev models.PresenceChanged
		return json.Unmarshal(f.Data, &ev) == nil && ev.UserID == userID
	}
}

func send(t *testing.T, conn *websocket.Conn, frameType, room string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"type": frameType,
		"data": map[string]string{"room": room},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func joinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	send(t, conn, "room:join", room)
	readFrame(t, conn, "room:joined")
}

func TestServeWSRejectsMissingOrInvalidToken(t *testing.T) {
	srv := newTestServer(t, time.Minute)

	for _, query := range []string{"", "?token=bad"} {
		_, resp, err := websocket.DefaultDialer.Dial(srv.url+query, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestChannelMessageReachesOnlyJoinedConnections(t *testing.T) {
	srv := newTestServer(t, time.Minute)
	ctx := context.Background()

	alice := srv.dial(t, "alice")
	bob := srv.dial(t, "bob")
	carol := srv.dial(t, "carol")

	joinRoom(t, alice, "channel:7")
	joinRoom(t, bob, "channel:7")

	subscribers, err := srv.hub.Subscribers(ctx, models.ChannelRoom(7))
	require.NoError(t, err)
	assert.Len(t, subscribers, 2)

	srv.hub.Publish(ctx, models.NewMessage{
		ChannelID: 7,
		Message:   models.Message{ID: "m1", ChannelID: 7, AuthorID: "alice", Content: "hi"},
	})
	// A global marker after the message; the loop keeps publish order.
	srv.hub.Publish(ctx, models.PresenceChanged{UserID: "marker", Status: models.PresenceOnline})

	for _, conn := range []*websocket.Conn{alice, bob} {
		f := readFrame(t, conn, models.EventMessageNew)
		var ev models.NewMessage
		require.NoError(t, json.Unmarshal(f.Data, &ev))
		assert.Equal(t, "m1", ev.Message.ID)
	}

	assert.NotContains(t, collectUntil(t, carol, presenceOf("marker")), models.EventMessageNew)
}

func TestJoinRefusedForNonMember(t *testing.T) {
	srv := newTestServer(t, time.Minute)
	mallory := srv.dial(t, "mallory")

	send(t, mallory, "room:join", "channel:7")
	f := readFrame(t, mallory, "error")
	assert.Contains(t, string(f.Data), "not a member")

	subscribers, err := srv.hub.Subscribers(context.Background(), models.ChannelRoom(7))
	require.NoError(t, err)
	assert.Empty(t, subscribers)
}

func TestMalformedFrames(t *testing.T) {
	srv := newTestServer(t, time.Minute)
	alice := srv.dial(t, "alice")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	readFrame(t, alice, "error")

	send(t, alice, "room:explode", "channel:7")
	readFrame(t, alice, "error")

	send(t, alice, "room:join", "channel:abc")
	readFrame(t, alice, "error")
}

func TestTyping(t *testing.T) {
	srv := newTestServer(t, time.Minute)
	alice := srv.dial(t, "alice")
	bob := srv.dial(t, "bob")

	send(t, alice, "typing:start", "channel:7")
	f := readFrame(t, alice, "error")
	assert.Contains(t, string(f.Data), "join the room")

	joinRoom(t, alice, "channel:7")
	joinRoom(t, bob, "channel:7")

	send(t, alice, "typing:start", "channel:7")
	f = readFrame(t, bob, models.EventTypingStart)
	var ev models.TypingChanged
	require.NoError(t, json.Unmarshal(f.Data, &ev))
	assert.Equal(t, "alice", ev.UserID)
	assert.True(t, ev.Typing)

	send(t, alice, "typing:stop", "channel:7")
	readFrame(t, bob, models.EventTypingStop)
}

func TestLeaveStopsDelivery(t *testing.T) {
	srv := newTestServer(t, time.Minute)
	ctx := context.Background()
	alice := srv.dial(t, "alice")

	joinRoom(t, alice, "channel:7")
	send(t, alice, "room:leave", "channel:7")
	readFrame(t, alice, "room:left")

	srv.hub.Publish(ctx, models.NewMessage{ChannelID: 7, Message: models.Message{ID: "m1", ChannelID: 7}})
	srv.hub.Publish(ctx, models.PresenceChanged{UserID: "marker", Status: models.PresenceOnline})

	assert.NotContains(t, collectUntil(t, alice, presenceOf("marker")), models.EventMessageNew)
}

func TestPresenceGoesOfflineAfterDebounce(t *testing.T) {
	srv := newTestServer(t, 50*time.Millisecond)
	observer := srv.dial(t, "observer")
	alice := srv.dial(t, "alice")

	readFrame(t, observer, models.EventPresenceChanged)
	alice.Close()

	require.Eventually(t, func() bool {
		rec, ok, err := srv.hub.Presence(context.Background(), "alice")
		return err == nil && ok && rec.State == realtime.StateOffline
	}, 2*time.Second, 10*time.Millisecond)

	var last statusWrite
	for _, w := range srv.store.snapshot() {
		if w.userID == "alice" {
			last = w
		}
	}
	assert.Equal(t, models.PresenceOffline, last.status)

	collectUntil(t, observer, func(f frame) bool {
		var ev models.PresenceChanged
		return f.Type == models.EventPresenceChanged &&
			json.Unmarshal(f.Data, &ev) == nil &&
			ev.UserID == "alice" && ev.Status == models.PresenceOffline
	})
}

func TestReconnectWithinDebounceStaysOnline(t *testing.T) {
	srv := newTestServer(t, time.Minute)
	ctx := context.Background()

	first := srv.dial(t, "alice")
	first.Close()

	require.Eventually(t, func() bool {
		rec, ok, err := srv.hub.Presence(ctx, "alice")
		return err == nil && ok && rec.State == realtime.StatePendingOffline
	}, 2*time.Second, 10*time.Millisecond)

	srv.dial(t, "alice")

	require.Eventually(t, func() bool {
		rec, ok, err := srv.hub.Presence(ctx, "alice")
		return err == nil && ok && rec.State == realtime.StateOnline
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []statusWrite{{userID: "alice", status: models.PresenceOnline}}, srv.store.snapshot())
}

func TestDeliverEvictsFullClient(t *testing.T) {
	hub := NewHub(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	client := &Client{hub: hub, send: make(chan []byte, 1), id: "c1", userID: "alice"}
	hub.clients[client.id] = client

	require.NoError(t, hub.Deliver("c1", models.EventMessageNew, []byte("one")))
	assert.ErrorIs(t, hub.Deliver("c1", models.EventMessageNew, []byte("two")), ErrSendBufferFull)
	assert.NotContains(t, hub.clients, "c1")

	assert.Equal(t, []byte("one"), <-client.send)
	_, open := <-client.send
	assert.False(t, open, "evicted client's send channel is closed")

	assert.ErrorIs(t, hub.Deliver("c1", models.EventMessageNew, []byte("three")), ErrUnknownConnection)
}

func TestStoppedHub(t *testing.T) {
	hub := NewHub(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.Done()

	_, err := hub.Stats(context.Background())
	assert.ErrorIs(t, err, ErrHubClosed)

	// Publishing after shutdown must not block.
	for i := 0; i < 2048; i++ {
		hub.Publish(context.Background(), models.PresenceChanged{UserID: "alice", Status: models.PresenceOnline})
	}
}

func TestDuplicateConnectionLeavesOriginalRegistered(t *testing.T) {
	hub := NewHub(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	original := &Client{hub: hub, send: make(chan []byte, 4), id: "c1", userID: "alice"}
	duplicate := &Client{hub: hub, send: make(chan []byte, 4), id: "c1", userID: "alice"}
	t.Cleanup(hub.engine.Close)

	hub.registerClient(original)
	hub.registerClient(duplicate)

	_, open := <-duplicate.send
	assert.False(t, open, "rejected duplicate is closed")

	hub.unregisterClient(duplicate)

	assert.Equal(t, []string{"c1"}, hub.engine.ConnectionsForUser("alice"))
	assert.Same(t, original, hub.clients["c1"])
	rec, ok := hub.engine.Presence("alice")
	require.True(t, ok)
	assert.Equal(t, realtime.StateOnline, rec.State)

	hub.unregisterClient(original)
	assert.Empty(t, hub.engine.ConnectionsForUser("alice"))
	assert.NotContains(t, hub.clients, "c1")
}

func TestEvictedClientStillUnregisters(t *testing.T) {
	hub := NewHub(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	client := &Client{hub: hub, send: make(chan []byte, 1), id: "c1", userID: "alice"}
	t.Cleanup(hub.engine.Close)
	hub.registerClient(client)

	// The presence broadcast already filled the buffer.
	assert.ErrorIs(t, hub.Deliver("c1", models.EventMessageNew, []byte("more")), ErrSendBufferFull)
	assert.Equal(t, []string{"c1"}, hub.engine.ConnectionsForUser("alice"))

	hub.unregisterClient(client)
	assert.Empty(t, hub.engine.ConnectionsForUser("alice"))
}

func publishedCount(t *testing.T, eventType string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != "realtime_events_published_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "type" && label.GetValue() == eventType {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestTypingAndPresenceAreCounted(t *testing.T) {
	srv := newTestServer(t, time.Minute)
	typingBefore := publishedCount(t, models.EventTypingStart)
	presenceBefore := publishedCount(t, models.EventPresenceChanged)

	alice := srv.dial(t, "alice")
	bob := srv.dial(t, "bob")
	joinRoom(t, alice, "channel:7")
	joinRoom(t, bob, "channel:7")

	send(t, alice, "typing:start", "channel:7")
	readFrame(t, bob, models.EventTypingStart)

	assert.Equal(t, typingBefore+1, publishedCount(t, models.EventTypingStart))
	assert.Equal(t, presenceBefore+2, publishedCount(t, models.EventPresenceChanged))
}

package ws

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/metrics"
	"chat-realtime/internal/models"
	"chat-realtime/internal/realtime"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrSendBufferFull    = errors.New("client send buffer full")
	ErrHubClosed         = errors.New("hub closed")
)

// Authorizer resolves the members of a room before a join is accepted.
type Authorizer interface {
	CurrentMembers(ctx context.Context, room models.RoomKey) (map[string]struct{}, error)
}

// TokenValidator resolves the user behind a connection's token.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

type roomRequest struct {
	client *Client
	room   models.RoomKey
}

type typingRequest struct {
	client   *Client
	room     models.RoomKey
	threadID string
	typing   bool
}

type directFrame struct {
	client  *Client
	payload []byte
}

// Hub owns the realtime engine and is the only goroutine that touches it.
// Everything else talks to the hub through its channels.
type Hub struct {
	engine *realtime.Engine

	// Live clients by connection id; loop only.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	join       chan roomRequest
	leave      chan roomRequest
	typing     chan typingRequest
	events     chan models.Event
	deferred   chan func()
	direct     chan directFrame
	queries    chan func(*realtime.Engine)
	done       chan struct{}

	authorizer Authorizer
	validator  TokenValidator
	sendBuffer int
	logger     *slog.Logger
}

type Options struct {
	Store       realtime.StatusStore
	Debounce    time.Duration
	SendBuffer  int
	EventBuffer int
	Authorizer  Authorizer
	Validator   TokenValidator
	Logger      *slog.Logger
}

func NewHub(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 1024
	}

	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan roomRequest),
		leave:      make(chan roomRequest),
		typing:     make(chan typingRequest),
		events:     make(chan models.Event, opts.EventBuffer),
		deferred:   make(chan func()),
		direct:     make(chan directFrame, opts.EventBuffer),
		queries:    make(chan func(*realtime.Engine)),
		done:       make(chan struct{}),
		authorizer: opts.Authorizer,
		validator:  opts.Validator,
		sendBuffer: opts.SendBuffer,
		logger:     opts.Logger,
	}

	var store realtime.StatusStore
	if opts.Store != nil {
		store = observedStore{next: opts.Store}
	}

	h.engine = realtime.NewEngine(realtime.EngineOptions{
		Transport: h,
		Store:     store,
		Scheduler: realtime.SchedulerFunc(h.afterFunc),
		Debounce:  opts.Debounce,
		OnPublish: func(event models.Event) {
			metrics.RecordEventPublished(event.EventName())
		},
		Logger: opts.Logger,
	})

	return h
}

// afterFunc schedules f to run on the event loop.
func (h *Hub) afterFunc(d time.Duration, f func()) realtime.Timer {
	return time.AfterFunc(d, func() {
		enqueue(h, h.deferred, f)
	})
}

// enqueue hands v to the loop unless the hub has stopped.
func enqueue[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("[HUB] Starting hub event loop")
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case req := <-h.join:
			h.joinRoom(req)

		case req := <-h.leave:
			h.leaveRoom(req)

		case req := <-h.typing:
			h.publishTyping(req)

		case event := <-h.events:
			h.engine.Publish(event)

		case fn := <-h.deferred:
			fn()

		case frame := <-h.direct:
			h.deliverFrame(frame.client, frame.payload)

		case query := <-h.queries:
			query(h.engine)
		}
	}
}

// Done is closed when Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) shutdown() {
	h.engine.Close()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
	close(h.done)
	h.logger.Info("[HUB] Hub event loop stopped")
}

func (h *Hub) registerClient(client *Client) {
	if _, exists := h.clients[client.id]; exists {
		h.logger.Warn("[HUB] Ignoring duplicate client", "conn", client.id, "user", client.userID)
		close(client.send)
		return
	}

	// Added before Connect so the client sees its own presence change.
	h.clients[client.id] = client
	if !h.engine.Connect(client.id, client.userID) {
		delete(h.clients, client.id)
		close(client.send)
		return
	}
	client.registered = true

	metrics.RecordWebSocketConnection()
	h.logger.Info("[HUB] Client registered", "conn", client.id, "user", client.userID,
		"userConnections", len(h.engine.ConnectionsForUser(client.userID)))
}

// unregisterClient releases a client the hub accepted. A rejected
// duplicate shares its id with a live connection and must not touch it.
func (h *Hub) unregisterClient(client *Client) {
	if !client.registered {
		return
	}
	client.registered = false

	if current, ok := h.clients[client.id]; ok && current == client {
		delete(h.clients, client.id)
		close(client.send)
	}

	if h.engine.Disconnect(client.id) {
		metrics.RecordWebSocketDisconnection()
		h.logger.Info("[HUB] Client unregistered", "conn", client.id, "user", client.userID)
	}
}

func (h *Hub) joinRoom(req roomRequest) {
	if h.engine.Join(req.client.id, req.room) {
		h.logger.Debug("[HUB] Joined room", "conn", req.client.id, "room", req.room)
	}
	h.replyFrame(req.client, "room:joined", map[string]string{"room": req.room.String()})
}

func (h *Hub) leaveRoom(req roomRequest) {
	if h.engine.Leave(req.client.id, req.room) {
		h.logger.Debug("[HUB] Left room", "conn", req.client.id, "room", req.room)
	}
	h.replyFrame(req.client, "room:left", map[string]string{"room": req.room.String()})
}

func (h *Hub) publishTyping(req typingRequest) {
	if !h.engine.Joined(req.client.id, req.room) {
		h.replyFrame(req.client, "error", map[string]string{"message": "join the room before typing"})
		return
	}
	h.engine.Publish(models.TypingChanged{
		Room:     req.room,
		UserID:   req.client.userID,
		ThreadID: req.threadID,
		Typing:   req.typing,
	})
}

func (h *Hub) replyFrame(client *Client, frameType string, data interface{}) {
	payload, err := models.EncodeFrame(frameType, data, time.Now())
	if err != nil {
		h.logger.Error("[HUB] Failed to encode frame", "type", frameType, "error", err)
		return
	}
	h.deliverFrame(client, payload)
}

func (h *Hub) deliverFrame(client *Client, payload []byte) {
	if current, ok := h.clients[client.id]; !ok || current != client {
		return
	}
	if err := h.Deliver(client.id, "", payload); err != nil {
		h.logger.Warn("[HUB] Failed to deliver frame", "conn", client.id, "error", err)
	}
}

// Deliver implements realtime.Transport. A client whose buffer is full is
// dropped; its read pump then reports the disconnect.
func (h *Hub) Deliver(connID, eventName string, payload []byte) error {
	client, ok := h.clients[connID]
	if !ok {
		metrics.RecordDelivery(false)
		return ErrUnknownConnection
	}

	select {
	case client.send <- payload:
		metrics.RecordDelivery(true)
		return nil
	default:
		h.logger.Warn("[HUB] Client buffer full, disconnecting", "conn", connID, "user", client.userID, "type", eventName)
		delete(h.clients, connID)
		close(client.send)
		metrics.RecordDelivery(false)
		return ErrSendBufferFull
	}
}

// Publish hands an event to the loop. It never reports delivery errors.
func (h *Hub) Publish(ctx context.Context, event models.Event) {
	select {
	case h.events <- event:
	case <-h.done:
		h.logger.Warn("[HUB] Dropping event, hub stopped", "type", event.EventName())
	case <-ctx.Done():
		h.logger.Warn("[HUB] Dropping event", "type", event.EventName(), "error", ctx.Err())
	}
}

// ask runs fn on the loop and waits for its result.
func ask[T any](ctx context.Context, h *Hub, fn func(*realtime.Engine) T) (T, error) {
	var zero T
	out := make(chan T, 1)
	query := func(e *realtime.Engine) { out <- fn(e) }

	select {
	case h.queries <- query:
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-out:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type presenceResult struct {
	record realtime.PresenceRecord
	ok     bool
}

// Presence returns the live presence record for a user.
func (h *Hub) Presence(ctx context.Context, userID string) (realtime.PresenceRecord, bool, error) {
	res, err := ask(ctx, h, func(e *realtime.Engine) presenceResult {
		rec, ok := e.Presence(userID)
		return presenceResult{record: rec, ok: ok}
	})
	return res.record, res.ok, err
}

func (h *Hub) Subscribers(ctx context.Context, room models.RoomKey) ([]string, error) {
	return ask(ctx, h, func(e *realtime.Engine) []string {
		return e.Subscribers(room)
	})
}

func (h *Hub) Stats(ctx context.Context) (realtime.Stats, error) {
	return ask(ctx, h, func(e *realtime.Engine) realtime.Stats {
		return e.Stats()
	})
}

// observedStore counts presence transitions on their way to the store.
type observedStore struct {
	next realtime.StatusStore
}

func (s observedStore) SetUserStatus(userID string, status models.PresenceStatus, lastSeenAt time.Time) error {
	metrics.RecordPresenceTransition(string(status))
	return s.next.SetUserStatus(userID, status, lastSeenAt)
}

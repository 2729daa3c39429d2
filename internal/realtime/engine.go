package realtime

import (
	"errors"
	"log/slog"
	"time"

	"chat-realtime/internal/models"
)

// Engine composes the registry, router, presence coordinator and
// broadcaster behind the transport boundary. None of it is locked: every
// method must be called from the same goroutine.
type Engine struct {
	registry    *Registry
	router      *Router
	presence    *Coordinator
	broadcaster *Broadcaster
	logger      *slog.Logger
}

type EngineOptions struct {
	Transport Transport
	Store     StatusStore
	Scheduler Scheduler
	Debounce  time.Duration
	// OnPublish sees every event handed to the broadcaster, presence
	// changes included.
	OnPublish func(models.Event)
	Now       func() time.Time
	Logger    *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	registry := NewRegistry()
	registry.now = opts.Now
	router := NewRouter()
	broadcaster := NewBroadcaster(registry, router, opts.Transport, opts.Logger)
	broadcaster.now = opts.Now
	if opts.OnPublish != nil {
		broadcaster.observe = opts.OnPublish
	}

	e := &Engine{
		registry:    registry,
		router:      router,
		broadcaster: broadcaster,
		logger:      opts.Logger,
	}
	e.presence = NewCoordinator(CoordinatorOptions{
		Debounce:  opts.Debounce,
		Counter:   registry,
		Store:     opts.Store,
		Scheduler: opts.Scheduler,
		Notify:    func(ev models.PresenceChanged) { broadcaster.Publish(ev) },
		Now:       opts.Now,
		Logger:    opts.Logger,
	})

	return e
}

// Connect registers a connection and marks its user online.
func (e *Engine) Connect(connID, userID string) bool {
	if _, err := e.registry.Register(connID, userID); err != nil {
		if errors.Is(err, ErrDuplicateConnection) {
			e.logger.Warn("[HUB] Ignoring duplicate connection", "conn", connID, "user", userID)
		}
		return false
	}

	e.logger.Debug("[HUB] Connection registered", "conn", connID, "user", userID,
		"userConnections", e.registry.ConnectionCount(userID))
	e.presence.Connected(userID)
	return true
}

// Disconnect unregisters a connection, leaves all of its rooms and
// re-evaluates its user's presence.
func (e *Engine) Disconnect(connID string) bool {
	conn, ok := e.registry.Unregister(connID)
	if !ok {
		return false
	}

	e.router.Drop(conn)
	e.logger.Debug("[HUB] Connection unregistered", "conn", connID, "user", conn.UserID,
		"userConnections", e.registry.ConnectionCount(conn.UserID))
	e.presence.Disconnected(conn.UserID)
	return true
}

// Join subscribes a connection to a room. Authorization happens before this
// is called.
func (e *Engine) Join(connID string, room models.RoomKey) bool {
	conn, ok := e.registry.Get(connID)
	if !ok {
		e.logger.Warn("[HUB] Join for unknown connection", "conn", connID, "room", room)
		return false
	}
	return e.router.Join(conn, room)
}

func (e *Engine) Leave(connID string, room models.RoomKey) bool {
	conn, ok := e.registry.Get(connID)
	if !ok {
		return false
	}
	return e.router.Leave(conn, room)
}

// Joined reports whether connID is subscribed to room.
func (e *Engine) Joined(connID string, room models.RoomKey) bool {
	conn, ok := e.registry.Get(connID)
	return ok && conn.Joined(room)
}

func (e *Engine) Publish(event models.Event) int {
	return e.broadcaster.Publish(event)
}

func (e *Engine) Subscribers(room models.RoomKey) []string {
	return e.router.Subscribers(room)
}

func (e *Engine) ConnectionsForUser(userID string) []string {
	return e.registry.ConnectionsForUser(userID)
}

func (e *Engine) Presence(userID string) (PresenceRecord, bool) {
	return e.presence.Status(userID)
}

// Stats is a point-in-time view used for health reporting.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

func (e *Engine) Stats() Stats {
	return Stats{Connections: e.registry.Len(), Rooms: e.router.RoomCount()}
}

// Close cancels pending presence timers.
func (e *Engine) Close() {
	e.presence.Stop()
}

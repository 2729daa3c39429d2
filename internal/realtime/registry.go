package realtime

import (
	"errors"
	"sort"
	"time"

	"chat-realtime/internal/models"
)

var ErrDuplicateConnection = errors.New("duplicate connection id")

// Connection is one live transport session.
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	rooms map[models.RoomKey]struct{}
}

// Rooms returns the rooms this connection has joined, sorted.
func (c *Connection) Rooms() []models.RoomKey {
	rooms := make([]models.RoomKey, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

func (c *Connection) Joined(room models.RoomKey) bool {
	_, ok := c.rooms[room]
	return ok
}

// Registry owns every live connection and indexes them by user.
// It is not safe for concurrent use; the hub event loop is its only caller.
type Registry struct {
	connections map[string]*Connection
	byUser      map[string]map[string]struct{}
	now         func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		byUser:      make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

func (r *Registry) Register(connID, userID string) (*Connection, error) {
	if _, exists := r.connections[connID]; exists {
		return nil, ErrDuplicateConnection
	}

	conn := &Connection{
		ID:          connID,
		UserID:      userID,
		ConnectedAt: r.now(),
		rooms:       make(map[models.RoomKey]struct{}),
	}
	r.connections[connID] = conn

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][connID] = struct{}{}

	return conn, nil
}

// Unregister removes a connection. Absent ids are ignored so duplicate
// disconnect notifications are harmless.
func (r *Registry) Unregister(connID string) (*Connection, bool) {
	conn, ok := r.connections[connID]
	if !ok {
		return nil, false
	}

	delete(r.connections, connID)
	if conns := r.byUser[conn.UserID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}

	return conn, true
}

func (r *Registry) Get(connID string) (*Connection, bool) {
	conn, ok := r.connections[connID]
	return conn, ok
}

func (r *Registry) ConnectionsForUser(userID string) []string {
	conns := r.byUser[userID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) ConnectionCount(userID string) int {
	return len(r.byUser[userID])
}

// All returns every live connection id.
func (r *Registry) All() []string {
	ids := make([]string, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	return len(r.connections)
}

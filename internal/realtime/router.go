package realtime

import (
	"sort"

	"chat-realtime/internal/models"
)

// Router maps rooms to subscribed connections. The reverse index lives on
// each Connection so both sides are updated together.
type Router struct {
	rooms map[models.RoomKey]map[string]struct{}
}

func NewRouter() *Router {
	return &Router{rooms: make(map[models.RoomKey]map[string]struct{})}
}

// Join subscribes conn to room. It reports whether anything changed.
func (r *Router) Join(conn *Connection, room models.RoomKey) bool {
	if _, ok := conn.rooms[room]; ok {
		return false
	}

	subs := r.rooms[room]
	if subs == nil {
		subs = make(map[string]struct{})
		r.rooms[room] = subs
	}
	subs[conn.ID] = struct{}{}
	conn.rooms[room] = struct{}{}

	return true
}

// Leave is the inverse of Join. Rooms left empty are dropped.
func (r *Router) Leave(conn *Connection, room models.RoomKey) bool {
	if _, ok := conn.rooms[room]; !ok {
		return false
	}

	delete(conn.rooms, room)
	r.remove(conn.ID, room)

	return true
}

// Drop removes conn from every room it joined.
func (r *Router) Drop(conn *Connection) {
	for room := range conn.rooms {
		r.remove(conn.ID, room)
	}
	conn.rooms = make(map[models.RoomKey]struct{})
}

func (r *Router) remove(connID string, room models.RoomKey) {
	subs, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(r.rooms, room)
	}
}

// Subscribers returns the connections joined to room; empty for unknown rooms.
func (r *Router) Subscribers(room models.RoomKey) []string {
	subs := r.rooms[room]
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomCount is the number of rooms with at least one subscriber.
func (r *Router) RoomCount() int {
	return len(r.rooms)
}

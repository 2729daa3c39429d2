package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"chat-realtime/internal/models"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max inbound frame size; clients only send control frames.
	maxMessageSize = 64 * 1024

	// Time allowed for a membership lookup on join
	authorizeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID string
	logger *slog.Logger

	// registered is set by the hub loop once the engine accepted the client.
	registered bool
}

type clientFrame struct {
	Type string `json:"type"`
	Data struct {
		Room     string `json:"room"`
		ThreadID string `json:"threadId"`
	} `json:"data"`
}

// ReadPump pumps frames from the websocket to the hub.
func (c *Client) ReadPump() {
	defer func() {
		enqueue(c.hub, c.hub.unregister, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("[CLIENT] Unexpected close", "conn", c.id, "user", c.userID, "error", err)
			}
			break
		}

		c.handleClientMessage(message)
	}
}

// WritePump pumps frames from the hub to the websocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Error("[CLIENT] Failed to get writer", "conn", c.id, "user", c.userID, "error", err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.logger.Error("[CLIENT] Failed to close writer", "conn", c.id, "user", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error("[CLIENT] Failed to send ping", "conn", c.id, "user", c.userID, "error", err)
				return
			}
		}
	}
}

func (c *Client) handleClientMessage(message []byte) {
	var frame clientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Error("[CLIENT] Error unmarshaling message", "conn", c.id, "user", c.userID, "error", err)
		c.replyError("malformed frame")
		return
	}

	switch frame.Type {
	case "room:join", "room:leave", "typing:start", "typing:stop":
	default:
		c.logger.Warn("[CLIENT] Unknown event type", "type", frame.Type, "conn", c.id, "user", c.userID)
		c.replyError("unknown frame type")
		return
	}

	room, err := models.ParseRoomKey(frame.Data.Room)
	if err != nil {
		c.replyError(err.Error())
		return
	}

	switch frame.Type {
	case "room:join":
		if !c.authorize(room) {
			return
		}
		enqueue(c.hub, c.hub.join, roomRequest{client: c, room: room})

	case "room:leave":
		enqueue(c.hub, c.hub.leave, roomRequest{client: c, room: room})

	case "typing:start", "typing:stop":
		enqueue(c.hub, c.hub.typing, typingRequest{
			client:   c,
			room:     room,
			threadID: frame.Data.ThreadID,
			typing:   frame.Type == "typing:start",
		})
	}
}

// authorize checks room membership off the event loop.
func (c *Client) authorize(room models.RoomKey) bool {
	if c.hub.authorizer == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
	defer cancel()

	members, err := c.hub.authorizer.CurrentMembers(ctx, room)
	if err != nil {
		c.logger.Error("[CLIENT] Membership lookup failed", "conn", c.id, "room", room, "error", err)
		c.replyError("membership lookup failed")
		return false
	}
	if _, ok := members[c.userID]; !ok {
		c.logger.Warn("[CLIENT] Join refused, not a member", "conn", c.id, "user", c.userID, "room", room)
		c.replyError("not a member of " + room.String())
		return false
	}
	return true
}

func (c *Client) replyError(message string) {
	payload, err := models.EncodeFrame("error", map[string]string{"message": message}, time.Now())
	if err != nil {
		return
	}
	enqueue(c.hub, c.hub.direct, directFrame{client: c, payload: payload})
}

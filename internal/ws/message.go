package ws

import (
	"net/http"

	"chat-realtime/internal/auth"

	"github.com/google/uuid"
)

func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	logger := hub.logger
	logger.Debug("[WS] New WebSocket connection request", "from", remoteAddr)

	token := auth.ExtractTokenFromRequest(r)
	if token == "" {
		logger.Warn("[WS] No token provided", "from", remoteAddr)
		http.Error(w, "Unauthorized: token required", http.StatusUnauthorized)
		return
	}

	claims, err := hub.validator.ValidateToken(token)
	if err != nil {
		logger.Warn("[WS] Token validation failed", "from", remoteAddr, "error", err)
		http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[WS] Failed to upgrade connection", "user", claims.Subject, "error", err)
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.sendBuffer),
		id:     uuid.NewString(),
		userID: claims.Subject,
		logger: logger,
	}

	logger.Info("[WS] Connection upgraded", "conn", client.id, "user", client.userID, "from", remoteAddr)

	if !enqueue(hub, hub.register, client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

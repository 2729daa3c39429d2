package router

import (
	"log/slog"
	"net/http"
	"time"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/handler"
	"chat-realtime/internal/metrics"
	"chat-realtime/internal/ws"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Hub       *ws.Hub
	Validator *auth.Validator
	Chat      handler.ChatService
	Presence  handler.PresenceStore
	Checks    map[string]handler.Check
	Logger    *slog.Logger
}

func Setup(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(deps.Logger))
	r.Use(metrics.Middleware())

	healthHandler := handler.NewHealthHandler(deps.Hub, deps.Checks)
	messageHandler := handler.NewMessageHandler(deps.Chat, deps.Logger)
	presenceHandler := handler.NewPresenceHandler(deps.Hub, deps.Presence, deps.Logger)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", metrics.Handler())
	r.GET("/ws", func(c *gin.Context) {
		ws.ServeWS(deps.Hub, c.Writer, c.Request)
	})

	api := r.Group("/api")
	api.Use(auth.Middleware(deps.Validator))
	{
		api.POST("/channels/:channelId/members", messageHandler.JoinChannel)
		api.POST("/channels/:channelId/messages", messageHandler.SendChannelMessage)
		api.POST("/conversations/:userId/messages", messageHandler.SendDirectMessage)
		api.POST("/messages/:messageId/reactions", messageHandler.ToggleReaction)
		api.POST("/messages/:messageId/replies", messageHandler.ReplyInThread)

		api.GET("/presence", presenceHandler.ListOnline)
		api.GET("/presence/:userId", presenceHandler.GetUserStatus)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

// RequestLogger logs one line per request after it completes.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("[HTTP] Request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("[HTTP] Request", attrs...)
		default:
			logger.Debug("[HTTP] Request", attrs...)
		}
	}
}

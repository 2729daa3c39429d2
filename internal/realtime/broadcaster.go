package realtime

import (
	"log/slog"
	"time"

	"chat-realtime/internal/models"
)

// Transport delivers an encoded frame to one connection.
type Transport interface {
	Deliver(connID, eventName string, payload []byte) error
}

// Broadcaster fans events out over the current registry and router state.
// It keeps no state of its own.
type Broadcaster struct {
	registry  *Registry
	router    *Router
	transport Transport
	observe   func(models.Event)
	now       func() time.Time
	logger    *slog.Logger
}

func NewBroadcaster(registry *Registry, router *Router, transport Transport, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		router:    router,
		transport: transport,
		observe:   func(models.Event) {},
		now:       time.Now,
		logger:    logger,
	}
}

// Targets resolves the connections an event goes to, deduplicated across
// rooms.
func (b *Broadcaster) Targets(event models.Event) []string {
	rooms := event.Rooms()
	if rooms == nil {
		return b.registry.All()
	}
	if len(rooms) == 1 {
		return b.router.Subscribers(rooms[0])
	}

	seen := make(map[string]struct{})
	var targets []string
	for _, room := range rooms {
		for _, id := range b.router.Subscribers(room) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			targets = append(targets, id)
		}
	}
	return targets
}

// Publish delivers event to every target and returns how many deliveries
// succeeded. Individual failures are logged and never reach the caller.
func (b *Broadcaster) Publish(event models.Event) int {
	b.observe(event)

	name := event.EventName()
	targets := b.Targets(event)
	if len(targets) == 0 {
		b.logger.Debug("[HUB] No subscribers for event", "type", name, "rooms", event.Rooms())
		return 0
	}

	payload, err := models.Encode(event, b.now())
	if err != nil {
		b.logger.Error("[HUB] Failed to encode event", "type", name, "error", err)
		return 0
	}

	sent := 0
	for _, connID := range targets {
		if err := b.transport.Deliver(connID, name, payload); err != nil {
			b.logger.Warn("[HUB] Delivery failed", "type", name, "conn", connID, "error", err)
			continue
		}
		sent++
	}

	b.logger.Debug("[HUB] Broadcast complete", "type", name, "sent", sent, "failed", len(targets)-sent)
	return sent
}

package realtime

import (
	"log/slog"
	"time"

	"chat-realtime/internal/models"
)

const DefaultDebounce = 60 * time.Second

type PresenceState int

const (
	StateOffline PresenceState = iota
	StateOnline
	StatePendingOffline
)

func (s PresenceState) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StatePendingOffline:
		return "pending_offline"
	default:
		return "offline"
	}
}

// Status is the externally visible status. A pending offline user is still
// reported online until the debounce window elapses.
func (s PresenceState) Status() models.PresenceStatus {
	if s == StateOffline {
		return models.PresenceOffline
	}
	return models.PresenceOnline
}

// StatusStore receives durable copies of presence transitions. Calls are
// fire and forget; errors are only logged.
type StatusStore interface {
	SetUserStatus(userID string, status models.PresenceStatus, lastSeenAt time.Time) error
}

// ConnectionCounter reports live connections for a user.
type ConnectionCounter interface {
	ConnectionCount(userID string) int
}

// PresenceRecord is a snapshot of one user's presence.
type PresenceRecord struct {
	UserID     string
	State      PresenceState
	LastSeenAt time.Time
}

type userPresence struct {
	state      PresenceState
	lastSeenAt time.Time

	// pending is the outstanding offline timer, if any.
	pending    Timer
	generation uint64
}

// Coordinator derives one presence state per user from the registry.
type Coordinator struct {
	debounce  time.Duration
	counter   ConnectionCounter
	store     StatusStore
	scheduler Scheduler
	notify    func(models.PresenceChanged)
	users     map[string]*userPresence
	now       func() time.Time
	logger    *slog.Logger
}

type CoordinatorOptions struct {
	Debounce  time.Duration
	Counter   ConnectionCounter
	Store     StatusStore
	Scheduler Scheduler // required; callbacks must run on the caller's goroutine
	Notify    func(models.PresenceChanged)
	Now       func() time.Time
	Logger    *slog.Logger
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notify == nil {
		opts.Notify = func(models.PresenceChanged) {}
	}

	return &Coordinator{
		debounce:  opts.Debounce,
		counter:   opts.Counter,
		store:     opts.Store,
		scheduler: opts.Scheduler,
		notify:    opts.Notify,
		users:     make(map[string]*userPresence),
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

func (c *Coordinator) record(userID string) *userPresence {
	rec, ok := c.users[userID]
	if !ok {
		rec = &userPresence{state: StateOffline}
		c.users[userID] = rec
	}
	return rec
}

// Connected is called after a connection for userID was registered.
func (c *Coordinator) Connected(userID string) {
	rec := c.record(userID)

	switch rec.state {
	case StateOnline:
		return

	case StatePendingOffline:
		c.cancel(rec)
		rec.state = StateOnline
		c.logger.Debug("[PRESENCE] Reconnected within debounce window", "user", userID)

	case StateOffline:
		rec.state = StateOnline
		rec.lastSeenAt = c.now()
		c.logger.Info("[PRESENCE] User online", "user", userID)
		c.persistAndBroadcast(userID, rec)
	}
}

// Disconnected is called after a connection for userID was unregistered.
func (c *Coordinator) Disconnected(userID string) {
	if c.counter.ConnectionCount(userID) > 0 {
		return
	}

	rec, ok := c.users[userID]
	if !ok || rec.state != StateOnline {
		return
	}

	rec.state = StatePendingOffline
	rec.lastSeenAt = c.now()
	rec.generation++
	generation := rec.generation
	rec.pending = c.scheduler.AfterFunc(c.debounce, func() {
		c.expire(userID, generation)
	})

	c.logger.Debug("[PRESENCE] Offline pending", "user", userID, "debounce", c.debounce)
}

// expire runs when a debounce timer fires. Timers that lost a race with a
// reconnect carry an old generation and are ignored.
func (c *Coordinator) expire(userID string, generation uint64) {
	rec, ok := c.users[userID]
	if !ok || rec.state != StatePendingOffline || rec.generation != generation {
		c.logger.Debug("[PRESENCE] Stale offline timer skipped", "user", userID)
		return
	}
	rec.pending = nil

	if c.counter.ConnectionCount(userID) > 0 {
		rec.state = StateOnline
		return
	}

	rec.state = StateOffline
	rec.lastSeenAt = c.now()
	c.logger.Info("[PRESENCE] User offline", "user", userID)
	c.persistAndBroadcast(userID, rec)
}

func (c *Coordinator) cancel(rec *userPresence) {
	if rec.pending != nil {
		rec.pending.Stop()
		rec.pending = nil
	}
	rec.generation++
}

func (c *Coordinator) persistAndBroadcast(userID string, rec *userPresence) {
	status := rec.state.Status()

	if c.store != nil {
		if err := c.store.SetUserStatus(userID, status, rec.lastSeenAt); err != nil {
			c.logger.Error("[PRESENCE] Failed to persist status", "user", userID, "status", status, "error", err)
		}
	}

	c.notify(models.PresenceChanged{
		UserID:     userID,
		Status:     status,
		LastSeenAt: rec.lastSeenAt,
	})
}

func (c *Coordinator) Status(userID string) (PresenceRecord, bool) {
	rec, ok := c.users[userID]
	if !ok {
		return PresenceRecord{}, false
	}
	return PresenceRecord{
		UserID:     userID,
		State:      rec.state,
		LastSeenAt: rec.lastSeenAt,
	}, true
}

// Stop cancels every outstanding offline timer.
func (c *Coordinator) Stop() {
	for _, rec := range c.users {
		if rec.pending != nil {
			rec.pending.Stop()
			rec.pending = nil
		}
	}
}

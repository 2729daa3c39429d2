package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chat-realtime/internal/models"
)

var ErrStatusQueueFull = errors.New("presence status queue full")

// StatusSink is a durable presence store such as the database or Redis.
type StatusSink interface {
	SetUserStatus(ctx context.Context, userID string, status models.PresenceStatus, lastSeenAt time.Time) error
}

// MultiStatusSink writes to every sink and joins their errors.
type MultiStatusSink []StatusSink

func (m MultiStatusSink) SetUserStatus(ctx context.Context, userID string, status models.PresenceStatus, lastSeenAt time.Time) error {
	var errs []error
	for _, sink := range m {
		if err := sink.SetUserStatus(ctx, userID, status, lastSeenAt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type statusUpdate struct {
	userID     string
	status     models.PresenceStatus
	lastSeenAt time.Time
}

// StatusWriter queues presence writes and applies them in order on a single
// worker, keeping store latency off the hub event loop.
type StatusWriter struct {
	sink    StatusSink
	queue   chan statusUpdate
	timeout time.Duration
	done    chan struct{}
	logger  *slog.Logger
}

func NewStatusWriter(sink StatusSink, queueSize int, timeout time.Duration, logger *slog.Logger) *StatusWriter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatusWriter{
		sink:    sink,
		queue:   make(chan statusUpdate, queueSize),
		timeout: timeout,
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// SetUserStatus enqueues a write without blocking.
func (w *StatusWriter) SetUserStatus(userID string, status models.PresenceStatus, lastSeenAt time.Time) error {
	select {
	case w.queue <- statusUpdate{userID: userID, status: status, lastSeenAt: lastSeenAt}:
		return nil
	default:
		return ErrStatusQueueFull
	}
}

// Run applies queued writes until ctx is cancelled, then drains what is
// already queued.
func (w *StatusWriter) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case update := <-w.queue:
			w.apply(update)
		case <-ctx.Done():
			for {
				select {
				case update := <-w.queue:
					w.apply(update)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (w *StatusWriter) Done() <-chan struct{} {
	return w.done
}

func (w *StatusWriter) apply(update statusUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.sink.SetUserStatus(ctx, update.userID, update.status, update.lastSeenAt); err != nil {
		w.logger.Error("[PRESENCE] Status write failed", "user", update.userID, "status", update.status, "error", err)
	}
}

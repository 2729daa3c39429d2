package realtime

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"chat-realtime/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// manualScheduler fires timers only when the test advances its clock.
type manualScheduler struct {
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{at: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) Now() time.Time {
	return s.now
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.now = s.now.Add(d)
	for i := 0; i < len(s.timers); i++ {
		t := s.timers[i]
		if !t.stopped && !t.fired && !t.at.After(s.now) {
			t.fired = true
			t.f()
		}
	}
}

func (s *manualScheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type delivery struct {
	connID  string
	event   string
	payload []byte
}

type recordingTransport struct {
	deliveries []delivery
	fail       map[string]error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{fail: make(map[string]error)}
}

func (t *recordingTransport) Deliver(connID, eventName string, payload []byte) error {
	if err := t.fail[connID]; err != nil {
		return err
	}
	t.deliveries = append(t.deliveries, delivery{connID: connID, event: eventName, payload: payload})
	return nil
}

// eventsFor lists the event names delivered to connID in order.
func (t *recordingTransport) eventsFor(connID string) []string {
	var names []string
	for _, d := range t.deliveries {
		if d.connID == connID {
			names = append(names, d.event)
		}
	}
	return names
}

func (t *recordingTransport) count(eventName string) int {
	n := 0
	for _, d := range t.deliveries {
		if d.event == eventName {
			n++
		}
	}
	return n
}

func (t *recordingTransport) reset() {
	t.deliveries = nil
}

type recordingStore struct {
	writes []models.PresenceChanged
	err    error
}

func (s *recordingStore) SetUserStatus(userID string, status models.PresenceStatus, lastSeenAt time.Time) error {
	s.writes = append(s.writes, models.PresenceChanged{UserID: userID, Status: status, LastSeenAt: lastSeenAt})
	return s.err
}

var errClosed = errors.New("transport closed")

type harness struct {
	engine    *Engine
	transport *recordingTransport
	store     *recordingStore
	scheduler *manualScheduler
}

const testDebounce = time.Minute

func newHarness() *harness {
	transport := newRecordingTransport()
	store := &recordingStore{}
	scheduler := newManualScheduler()

	engine := NewEngine(EngineOptions{
		Transport: transport,
		Store:     store,
		Scheduler: scheduler,
		Debounce:  testDebounce,
		Now:       scheduler.Now,
		Logger:    discardLogger(),
	})

	return &harness{engine: engine, transport: transport, store: store, scheduler: scheduler}
}

// multiRoomEvent targets several rooms at once.
type multiRoomEvent struct {
	Targets []models.RoomKey `json:"targets"`
}

func (e multiRoomEvent) EventName() string       { return "test:multi" }
func (e multiRoomEvent) Rooms() []models.RoomKey { return e.Targets }

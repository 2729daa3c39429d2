package realtime

import "time"

// Timer is a cancellable deferred task.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Implementations used by the hub must run f on
// the event loop goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(d time.Duration, f func()) Timer

func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Timer {
	return fn(d, f)
}

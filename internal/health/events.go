package health

import (
	"sync"
	"time"
)

// EventType identifies what a monitor event reports.
type EventType int

const (
	// EventStatusChanged reports a healthy/unhealthy flip for one service.
	EventStatusChanged EventType = iota
	// EventCheckCompleted reports the outcome of a single probe.
	EventCheckCompleted
	// EventMonitorStarted reports that the monitor loop began probing.
	EventMonitorStarted
	// EventMonitorStopped reports that the monitor loop exited.
	EventMonitorStopped
)

func (t EventType) String() string {
	switch t {
	case EventStatusChanged:
		return "status_changed"
	case EventCheckCompleted:
		return "check_completed"
	case EventMonitorStarted:
		return "monitor_started"
	case EventMonitorStopped:
		return "monitor_stopped"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by the monitor. EventStatusChanged carries
// the transition in Old and New; EventCheckCompleted carries the probe
// outcome in New, Reason and Latency. Lifecycle events set only Type and At.
type Event struct {
	Type    EventType
	Service string
	Old     State
	New     State
	Reason  string
	Latency time.Duration
	At      time.Time
}

// eventQueue is an unbounded FIFO. Publishing never blocks the monitor loop
// regardless of whether anyone is draining events. The queue outlives monitor
// restarts so consumers never miss the stop marker.
type eventQueue struct {
	mu    sync.Mutex
	items []Event
	wake  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

func (q *eventQueue) publish(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// tryNext pops the oldest event without waiting.
func (q *eventQueue) tryNext() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Event{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// next waits up to timeout for an event to arrive.
func (q *eventQueue) next(timeout time.Duration) (Event, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if ev, ok := q.tryNext(); ok {
			return ev, true
		}
		select {
		case <-q.wake:
		case <-deadline.C:
			return q.tryNext()
		}
	}
}

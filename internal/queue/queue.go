// Package queue implements one session's two event queues: an
// unbounded internal queue (raised by executable content, drained with
// strict priority) and a bounded external queue (events arriving from
// send/invoke/the embedder), fed and drained the way the teacher's
// internal/core.Machine runs its single buffered-channel event loop,
// split into two queues per spec.md §4.E.
package queue

import (
	"errors"
	"sync"

	"github.com/comalice/scxmlrt/internal/value"
)

// ErrFull is returned by PushExternal when the external queue's
// buffered channel is saturated, mirroring the teacher's
// `Machine.Send`backpressure error.
var ErrFull = errors.New("queue: external queue full (backpressure)")

// Event is the datum carried on either queue: a named event plus its
// `_event`-shaped metadata and data payload.
type Event struct {
	Name       string
	Data       value.Value
	SendID     string
	Origin     string
	OriginType string
	InvokeID   string
}

// Session owns one session's internal and external queues. The internal
// queue is a plain mutex-guarded slice: SCXML requires it never silently
// drop an event, so it grows instead of applying backpressure. The
// external queue is a buffered channel, exactly as the teacher's
// Machine.eventQueue is, and does apply backpressure once full.
type Session struct {
	mu       sync.Mutex
	internal []Event

	external chan Event
}

// NewSession constructs a Session whose external queue holds up to
// capacity buffered events before PushExternal starts returning ErrFull.
func NewSession(capacity int) *Session {
	if capacity <= 0 {
		capacity = 1000 // the teacher's own default buffered queue size
	}
	return &Session{external: make(chan Event, capacity)}
}

// RaiseInternal implements action.Raiser: <raise> and internal
// error.* events always land here, ahead of anything on the external
// queue.
func (s *Session) RaiseInternal(eventName string, data value.Value) {
	s.PushInternal(Event{Name: eventName, Data: data})
}

// PushInternal appends ev to the internal queue. Never blocks, never
// fails: SCXML's internal queue has no capacity limit.
func (s *Session) PushInternal(ev Event) {
	s.mu.Lock()
	s.internal = append(s.internal, ev)
	s.mu.Unlock()
}

// PushExternal enqueues ev for asynchronous delivery (a <send>, an
// invoke's forwarded child event, or the embedder's own push_event
// call). Returns ErrFull under backpressure rather than blocking, so a
// misbehaving sender cannot stall the interpreter's macrostep loop.
func (s *Session) PushExternal(ev Event) error {
	select {
	case s.external <- ev:
		return nil
	default:
		return ErrFull
	}
}

// PushExternalBlocking enqueues ev, blocking until there is room. Used
// by the scheduler (internal/scheduler) when delivering a delayed send
// whose target session is momentarily busy, where dropping the event
// would violate delivery guarantees a test harness relies on.
func (s *Session) PushExternalBlocking(ev Event) {
	s.external <- ev
}

// Next returns the next event to process: the oldest internal event if
// one is queued, else the oldest external event, else ok=false. This is
// the strict-priority rule spec.md §4.E requires — a session never
// dequeues an external event while any internal event is pending.
func (s *Session) Next() (ev Event, ok bool) {
	s.mu.Lock()
	if len(s.internal) > 0 {
		ev = s.internal[0]
		s.internal = s.internal[1:]
		s.mu.Unlock()
		return ev, true
	}
	s.mu.Unlock()

	select {
	case ev := <-s.external:
		return ev, true
	default:
		return Event{}, false
	}
}

// NextBlocking behaves like Next, but blocks on the external channel
// when the internal queue is empty, used by a run-to-completion driver
// that should idle rather than spin while waiting for outside input.
func (s *Session) NextBlocking() Event {
	s.mu.Lock()
	if len(s.internal) > 0 {
		ev := s.internal[0]
		s.internal = s.internal[1:]
		s.mu.Unlock()
		return ev
	}
	s.mu.Unlock()
	return <-s.external
}

// HasInternal reports whether the internal queue has at least one
// pending event.
func (s *Session) HasInternal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.internal) > 0
}

// Len reports the combined queue depth.
func (s *Session) Len() int {
	s.mu.Lock()
	n := len(s.internal)
	s.mu.Unlock()
	return n + len(s.external)
}

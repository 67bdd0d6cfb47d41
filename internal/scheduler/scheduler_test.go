package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/comalice/scxmlrt/internal/queue"
)

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []string
}

func (r *recordingDeliverer) DeliverScheduled(sessionID string, ev queue.Event) error {
	r.mu.Lock()
	r.delivered = append(r.delivered, ev.Name)
	r.mu.Unlock()
	return nil
}

func (r *recordingDeliverer) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.delivered))
	copy(out, r.delivered)
	return out
}

func TestManualModeHoldsUntilPolled(t *testing.T) {
	d := &recordingDeliverer{}
	s := New(d)
	s.SetMode(Manual)
	s.SetLogicalTime(time.Unix(0, 0))

	if err := s.Schedule("s1", "sess", 10*time.Second, queue.Event{Name: "late"}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.Poll()
	if len(d.names()) != 0 {
		t.Fatalf("expected no delivery before logical time advances, got %v", d.names())
	}

	s.SetLogicalTime(time.Unix(0, 0).Add(11 * time.Second))
	s.Poll()
	if got := d.names(); len(got) != 1 || got[0] != "late" {
		t.Fatalf("expected [late] after advancing past fire time, got %v", got)
	}
}

func TestCancelRemovesPendingSend(t *testing.T) {
	d := &recordingDeliverer{}
	s := New(d)
	s.SetMode(Manual)
	s.SetLogicalTime(time.Unix(0, 0))

	if err := s.Schedule("s1", "sess", time.Second, queue.Event{Name: "cancelled"}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Cancel("s1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	s.SetLogicalTime(time.Unix(0, 0).Add(10 * time.Second))
	s.Poll()
	if got := d.names(); len(got) != 0 {
		t.Fatalf("expected cancelled send never delivered, got %v", got)
	}
}

func TestCancelUnknownSendIDIsNoop(t *testing.T) {
	s := New(&recordingDeliverer{})
	if err := s.Cancel("nope"); err != nil {
		t.Fatalf("expected nil error cancelling unknown id, got %v", err)
	}
}

func TestScheduleDuplicateSendIDSupersedesEarlier(t *testing.T) {
	d := &recordingDeliverer{}
	s := New(d)
	s.SetMode(Manual)
	s.SetLogicalTime(time.Unix(0, 0))

	if err := s.Schedule("dup", "sess", time.Second, queue.Event{Name: "a"}); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}
	if err := s.Schedule("dup", "sess", time.Second, queue.Event{Name: "b"}); err != nil {
		t.Fatalf("second Schedule: %v", err)
	}

	if evs := s.GetScheduledEvents(); len(evs) != 1 || evs[0].Event.Name != "b" {
		t.Fatalf("expected only the superseding event pending, got %+v", evs)
	}

	s.SetLogicalTime(time.Unix(0, 0).Add(10 * time.Second))
	s.Poll()
	if got := d.names(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected only [b] delivered, got %v", got)
	}
}

func TestForcePollDeliversRegardlessOfFireTime(t *testing.T) {
	d := &recordingDeliverer{}
	s := New(d)
	s.SetMode(Manual)
	s.SetLogicalTime(time.Unix(0, 0))

	s.Schedule("", "sess", time.Hour, queue.Event{Name: "far"})
	s.ForcePoll()

	if got := d.names(); len(got) != 1 || got[0] != "far" {
		t.Fatalf("expected ForcePoll to deliver immediately, got %v", got)
	}
}

// TestForcePollJumpsOneEventAtATime is spec.md §8.4's S6: three calls to
// ForcePoll against sends at 50/100/150ms each fire exactly the
// next-in-order event and advance the logical clock to its fire time,
// rather than draining the whole backlog on the first call.
func TestForcePollJumpsOneEventAtATime(t *testing.T) {
	d := &recordingDeliverer{}
	s := New(d)
	s.SetMode(Manual)
	base := time.Unix(0, 0)
	s.SetLogicalTime(base)

	s.Schedule("", "sess", 50*time.Millisecond, queue.Event{Name: "e50"})
	s.Schedule("", "sess", 100*time.Millisecond, queue.Event{Name: "e100"})
	s.Schedule("", "sess", 150*time.Millisecond, queue.Event{Name: "e150"})

	s.ForcePoll()
	if got := d.names(); len(got) != 1 || got[0] != "e50" {
		t.Fatalf("expected only [e50] after first ForcePoll, got %v", got)
	}
	if got := s.GetLogicalTime(); !got.Equal(base.Add(50 * time.Millisecond)) {
		t.Fatalf("expected logical time to jump to 50ms, got %v", got)
	}

	s.ForcePoll()
	if got := d.names(); len(got) != 2 || got[1] != "e100" {
		t.Fatalf("expected [e50 e100] after second ForcePoll, got %v", got)
	}
	if got := s.GetLogicalTime(); !got.Equal(base.Add(100 * time.Millisecond)) {
		t.Fatalf("expected logical time to jump to 100ms, got %v", got)
	}

	s.ForcePoll()
	if got := d.names(); len(got) != 3 || got[2] != "e150" {
		t.Fatalf("expected [e50 e100 e150] after third ForcePoll, got %v", got)
	}
	if got := s.GetLogicalTime(); !got.Equal(base.Add(150 * time.Millisecond)) {
		t.Fatalf("expected logical time to jump to 150ms, got %v", got)
	}
}

func TestGetScheduledEventsOrderedByFireTime(t *testing.T) {
	s := New(&recordingDeliverer{})
	s.SetMode(Manual)
	base := time.Unix(0, 0)
	s.SetLogicalTime(base)

	s.Schedule("b", "sess", 2*time.Second, queue.Event{Name: "second"})
	s.Schedule("a", "sess", 1*time.Second, queue.Event{Name: "first"})

	evs := s.GetScheduledEvents()
	if len(evs) != 2 || evs[0].Event.Name != "first" || evs[1].Event.Name != "second" {
		t.Fatalf("expected [first, second] order, got %+v", evs)
	}

	// Confirm the snapshot walk didn't corrupt the live heap's index
	// bookkeeping: cancelling "a" after the snapshot must still work.
	if err := s.Cancel("a"); err != nil {
		t.Fatalf("Cancel after snapshot: %v", err)
	}
}

func TestCancelAllRemovesOnlyMatchingSession(t *testing.T) {
	d := &recordingDeliverer{}
	s := New(d)
	s.SetMode(Manual)
	s.SetLogicalTime(time.Unix(0, 0))

	s.Schedule("x", "sess-a", time.Second, queue.Event{Name: "a-event"})
	s.Schedule("y", "sess-b", time.Second, queue.Event{Name: "b-event"})

	s.CancelAll("sess-a")
	s.ForcePoll()

	got := d.names()
	if len(got) != 1 || got[0] != "b-event" {
		t.Fatalf("expected only b-event delivered, got %v", got)
	}
}

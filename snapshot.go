package statechartx

import (
	"fmt"
	"time"

	"github.com/comalice/scxmlrt/internal/core"
	"github.com/comalice/scxmlrt/internal/queue"
	"github.com/comalice/scxmlrt/internal/scheduler"
	"github.com/comalice/scxmlrt/internal/value"
)

// ScheduledSendSnapshot is one pending delayed <send>, per spec.md §6.6's
// `{send_id, event_name, data, remaining_ms, ...}` record shape.
type ScheduledSendSnapshot struct {
	SendID      string
	EventName   string
	Data        value.Value
	RemainingMS int64
}

// Snapshot is the serializable state spec.md §6.2/§6.6 describe: enough
// to reconstruct an equivalent running session against the same Model
// Graph. The graph itself is never embedded — a restore caller is
// expected to Create a fresh Session against the same graph first.
//
// ActiveInvokes records each active invoke id's child session id, but
// does not recursively capture that child's own state: restoring a
// session with active invokes recreates this session's own configuration
// and variables faithfully, but its invoked children are left for the
// caller to snapshot/restore independently (or to simply re-invoke, since
// a fresh <invoke> activation is often cheaper than faithfully replaying
// one). Full recursive invoke-tree restore would require re-running the
// same ModelResolver.Resolve calls a live FlushPending already did, which
// this pass does not attempt.
type Snapshot struct {
	SessionID      string
	Configuration  []string
	History        map[string]core.HistoryRecord
	Variables      map[string]value.Value
	ScheduledSends []ScheduledSendSnapshot
	ActiveInvokes  map[string]string
}

// Snapshot captures this session's externally observable state, per
// spec.md §6.2's snapshot().
func (s *Session) Snapshot() Snapshot {
	vars := make(map[string]value.Value)
	for _, name := range s.script.VariableNames() {
		if v, ok, err := s.script.GetVariable(name); err == nil && ok {
			vars[name] = v
		}
	}

	now := time.Now()
	if s.driver.scheduler.GetMode() == scheduler.Manual {
		now = s.driver.scheduler.GetLogicalTime()
	}
	var sends []ScheduledSendSnapshot
	for _, se := range s.driver.scheduler.GetScheduledEvents() {
		if se.SessionID != s.id {
			continue
		}
		remaining := se.FireAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		sends = append(sends, ScheduledSendSnapshot{
			SendID:      se.SendID,
			EventName:   se.Event.Name,
			Data:        se.Event.Data,
			RemainingMS: remaining.Milliseconds(),
		})
	}

	return Snapshot{
		SessionID:      s.id,
		Configuration:  s.core.Configuration(),
		History:        s.core.HistorySnapshot(),
		Variables:      vars,
		ScheduledSends: sends,
		ActiveInvokes:  s.driver.invoke.ActiveInvokes(s.id),
	}
}

// Restore re-applies a Snapshot's variables, configuration, history, and
// pending scheduled sends to s — the inverse of Snapshot, per spec.md
// §6.2's restore(). s must already be a freshly Created session (Start
// not yet called) against the same Model Graph the snapshot was taken
// from.
func (s *Session) Restore(snap Snapshot) error {
	for name, v := range snap.Variables {
		if err := s.script.SetVariable(name, v); err != nil {
			return fmt.Errorf("statechartx: restore: variable %q: %w", name, err)
		}
	}
	if err := s.core.RestoreConfiguration(snap.Configuration); err != nil {
		return fmt.Errorf("statechartx: restore: %w", err)
	}
	s.core.RestoreHistory(snap.History)

	for _, send := range snap.ScheduledSends {
		ev := queue.Event{
			Name:       send.EventName,
			Data:       send.Data,
			SendID:     send.SendID,
			Origin:     "#_scxml_" + s.id,
			OriginType: "http://www.w3.org/TR/scxml/#SCXMLEventProcessor",
		}
		delay := time.Duration(send.RemainingMS) * time.Millisecond
		if err := s.driver.scheduler.Schedule(send.SendID, s.id, delay, ev); err != nil {
			return fmt.Errorf("statechartx: restore: rescheduling %q: %w", send.SendID, err)
		}
	}
	return nil
}

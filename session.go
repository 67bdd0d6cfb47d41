package statechartx

import (
	"context"
	"fmt"

	"github.com/comalice/scxmlrt/internal/action"
	"github.com/comalice/scxmlrt/internal/core"
	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/queue"
	"github.com/comalice/scxmlrt/internal/scripthost"
	"github.com/comalice/scxmlrt/internal/value"
)

// Options configures one Session at creation, per spec.md §6.2's
// create(session_id, model, options).
type Options struct {
	// Name is exposed to scripts as the read-only `_name` system
	// variable; it defaults to the session id.
	Name string
	// Processors lists the `_ioprocessors` entries this session's script
	// context should see; a bare SCXML processor is assumed if empty.
	Processors []core.IOProcessorDescriptor
	// ParentSessionID is bookkeeping only — set when this session is
	// itself an <invoke> child created outside internal/invoke (e.g. a
	// test harness standing in for a real invoking parent). Sessions
	// created by internal/invoke itself wire this up directly and never
	// go through Driver.Create.
	ParentSessionID string
	// InitialData seeds the data model at session creation, in Create,
	// before Start runs the <data>/binding initialization; a <data>
	// element with the same id replaces the seeded value when it is
	// initialized. It carries the merged-namelist-and-param map spec.md §4.G.1
	// describes for invoked children, exposed here for any caller (a
	// test harness, a non-invoke embedder) that needs the same seeding.
	InitialData map[string]value.Value
}

// Session is one running top-level SCXML session: the host-facing handle
// spec.md §6.2 describes, wiring a Model Graph to its own script context,
// event queues, and the Driver's shared scheduler/invoke manager.
type Session struct {
	id     string
	driver *Driver
	graph  *model.Graph
	script *scripthost.Session
	queue  *queue.Session
	env    *action.Env
	core   *core.Session
}

// ID returns this session's id.
func (s *Session) ID() string { return s.id }

// Configuration returns the currently active state ids.
func (s *Session) Configuration() []string { return s.core.Configuration() }

// IsTerminated reports whether this session has reached a top-level
// <final> state.
func (s *Session) IsTerminated() bool { return s.core.IsTerminated() }

// sinkAdapter bridges scripthost.ErrorSink (a read-only system variable
// violation) into this session's own internal queue.
type sinkAdapter struct{ q *queue.Session }

func (a *sinkAdapter) RaiseError(eventName string, data value.Value) {
	a.q.RaiseInternal(eventName, data)
}

// Create builds a new top-level Session running g, registering it with
// the Driver's shared invoke manager so "#_scxml_<sessionid>" sends and
// <invoke> autoforward/finalize routing can already find it.
func (d *Driver) Create(sessionID string, g *model.Graph, opts Options) (*Session, error) {
	d.mu.Lock()
	if _, exists := d.sessions[sessionID]; exists {
		d.mu.Unlock()
		return nil, fmt.Errorf("statechartx: session %q already exists", sessionID)
	}
	d.mu.Unlock()

	q := queue.NewSession(0)
	script := d.host.CreateSession(sessionID, opts.ParentSessionID, &sinkAdapter{q: q})

	dispatcher := &core.SendDispatcher{
		SessionID: sessionID,
		Raiser:    q,
		Scheduler: d.scheduler,
		Queue:     q,
		Router:    d.invoke,
		HTTP:      d.http,
	}
	env := &action.Env{
		Graph:   g,
		Host:    script,
		Raise:   q,
		Send:    dispatcher,
		Cancel:  dispatcher,
		Logger:  d.logger,
		Context: context.Background(),
	}

	processors := opts.Processors
	if len(processors) == 0 {
		processors = []core.IOProcessorDescriptor{{Name: "scxml"}}
	}
	name := opts.Name
	if name == "" {
		name = sessionID
	}
	if err := script.SetupSystemVariables(name, processors); err != nil {
		return nil, fmt.Errorf("statechartx: setting up system variables: %w", err)
	}
	for k, v := range opts.InitialData {
		if err := script.SetVariable(k, v); err != nil {
			return nil, fmt.Errorf("statechartx: seeding %q: %w", k, err)
		}
	}

	coreSession := core.NewSession(sessionID, g, script, q, env, d.invoke, d.logger)

	sess := &Session{
		id:     sessionID,
		driver: d,
		graph:  g,
		script: script,
		queue:  q,
		env:    env,
		core:   coreSession,
	}

	d.invoke.RegisterSession(sessionID, g, env, q, processors)

	d.mu.Lock()
	d.sessions[sessionID] = sess
	d.mu.Unlock()

	return sess, nil
}

// Start runs the top-level scripts, initializes early-bound <data>
// elements, enters the default configuration, and drains eventless
// transitions (and any invokes they trigger) to a stable point.
func (s *Session) Start(ctx context.Context) error {
	return s.core.Start(ctx)
}

// PushEvent enqueues ev on the external queue, per spec.md §6.2. A
// caller driving the session synchronously should follow this with Step
// or RunUntilIdle; an async embedder can instead rely on a Driver-level
// poll loop (not provided here — spec.md §1 scopes threading policy to
// the embedder).
func (s *Session) PushEvent(ev queue.Event) error {
	return s.queue.PushExternal(ev)
}

// Step processes at most one event (after draining eventless transitions
// and starting any now-due invokes) and reports whether it made progress.
func (s *Session) Step(ctx context.Context) (bool, error) {
	return s.core.Step(ctx)
}

// RunUntilIdle drives Step until the queue is empty or the session
// terminates.
func (s *Session) RunUntilIdle(ctx context.Context) error {
	return s.core.RunUntilIdle(ctx)
}

// RunUntilTerminated blocks, consuming external events as they arrive,
// until the session reaches a top-level <final> state. Unlike
// RunUntilIdle, an empty queue does not return — the caller is expected
// to keep producing events for a long-running session. ctx cancellation
// is only observed between events: once idle, this blocks on the
// external queue exactly as queue.Session.NextBlocking does, with no
// select against ctx.Done, so a cancelled ctx with no further events
// pending will not unblock it.
func (s *Session) RunUntilTerminated(ctx context.Context) error {
	for !s.core.IsTerminated() {
		progressed, err := s.core.Step(ctx)
		if err != nil {
			return err
		}
		if progressed {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Idle: pull the next external event straight off the channel and
		// hand it back to PushExternal so Step's own priority-respecting
		// Next() call picks it up next iteration.
		ev := s.queue.NextBlocking()
		if err := s.queue.PushExternal(ev); err != nil {
			return err
		}
	}
	return nil
}

// CancelInvoke administratively cancels one of this session's active
// <invoke>s by id, per spec.md §6.2.
func (s *Session) CancelInvoke(invokeID string) error {
	return s.driver.invoke.CancelInvoke(s.id, invokeID)
}

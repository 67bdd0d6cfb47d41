// Package statechartx is the embedder-facing entry point for the SCXML
// runtime: Driver and Session wire the Model Graph, script host, action
// executor, event queues, scheduler, and invoke manager from internal/
// into one running SCXML session, per spec.md §6.2's host-facing driver
// API.
package statechartx

import (
	"log/slog"
	"sync"

	"github.com/comalice/scxmlrt/internal/core"
	"github.com/comalice/scxmlrt/internal/invoke"
	"github.com/comalice/scxmlrt/internal/scheduler"
	"github.com/comalice/scxmlrt/internal/scripthost"
)

// Driver is the process-wide host-facing entry point spec.md §6.2
// describes: one script-host factory, one delayed-send scheduler, and one
// invoke manager/session registry shared by every top-level Session it
// creates and every <invoke>d descendant underneath them, generalizing
// the teacher's single core.Machine-per-instance shape to a whole
// invocation forest running in one process.
type Driver struct {
	host      *scripthost.Host
	scheduler *scheduler.Scheduler
	invoke    *invoke.Manager
	http      core.HTTPSender
	resolver  invoke.ModelResolver
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// DriverOption configures a Driver at construction, following the
// teacher's internal/core/options.go functional-options pattern.
type DriverOption func(*Driver)

// WithLogger installs a structured logger shared by every session and
// collaborator the Driver creates; the default is slog.Default().
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithHTTPSender installs the BasicHTTP Event I/O Processor collaborator
// used for <send> targets containing "://"; a nil sender (the default)
// makes such sends always resolve to error.communication. <invoke src>
// is resolved through the ModelResolver, not this sender.
func WithHTTPSender(h core.HTTPSender) DriverOption {
	return func(d *Driver) { d.http = h }
}

// WithModelResolver installs the collaborator that turns one <invoke>'s
// src/content into the Model Graph its child session runs; nil (the
// default) makes every <invoke> fail with error.communication.
func WithModelResolver(r invoke.ModelResolver) DriverOption {
	return func(d *Driver) { d.resolver = r }
}

// NewDriver wires the shared Script Host, Event Scheduler, and Invoke
// Manager together. Scheduler and Manager each need the other (the
// scheduler delivers due events through Manager's session registry;
// Manager cancels a child's scheduled sends through the scheduler), so
// construction happens in two steps: Manager first with no scheduler,
// then the scheduler built against Manager as its Deliverer, then the
// scheduler wired back into Manager.
func NewDriver(opts ...DriverOption) *Driver {
	d := &Driver{sessions: map[string]*Session{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.host = scripthost.NewHost(d.logger)
	mgr := invoke.New(d.host, nil, d.resolver, d.http, d.logger)
	sched := scheduler.New(mgr)
	mgr.SetScheduler(sched)
	d.scheduler = sched
	d.invoke = mgr
	return d
}

// Session looks up a previously created top-level session by id.
func (d *Driver) Session(sessionID string) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[sessionID]
	return s, ok
}

// Shutdown releases sessionID's script host context and scheduled sends
// once the caller is done with it. It does not cancel or tear down any
// invoke children still active — cancel those explicitly via CancelInvoke
// first if that matters to the caller.
func (d *Driver) Shutdown(sessionID string) {
	d.mu.Lock()
	delete(d.sessions, sessionID)
	d.mu.Unlock()
	d.scheduler.CancelAll(sessionID)
	d.invoke.UnregisterSession(sessionID)
	d.host.ShutdownSession(sessionID)
}

// Package invoke implements the <invoke> lifecycle: deferred activation
// at the end of the enclosing macrostep, cancellation the moment the
// invoking state is exited, namelist/param passing into the child
// session's data model, <finalize> execution in the parent's script
// context ahead of autoforwarding, and done.invoke.<id> completion.
//
// Manager doubles as the process-wide session registry spec.md §4.F's
// "#_scxml_<sessionid>" and "#_<invokeid>" send targets need: every
// session — the top-level one and every invoked descendant, recursively
// — registers itself here, the same way the teacher's internal/core
// keeps one Machine per running instance but, unlike the teacher,
// spanning a whole invocation tree instead of a single flat instance.
package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/comalice/scxmlrt/internal/action"
	"github.com/comalice/scxmlrt/internal/core"
	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/queue"
	"github.com/comalice/scxmlrt/internal/scheduler"
	"github.com/comalice/scxmlrt/internal/scripthost"
	"github.com/comalice/scxmlrt/internal/value"
)

// ModelResolver resolves one <invoke>'s src/srcexpr/content/contentexpr
// into the Model Graph its child session should run. Producing that
// graph from XML text is the SCXML parser's job (spec.md §1 names the
// parser an out-of-scope collaborator), so Manager never does this
// itself — it only calls whatever ModelResolver the embedder supplies.
type ModelResolver interface {
	Resolve(ctx context.Context, inv *model.Invoke, env *action.Env) (*model.Graph, error)
}

// tracer names the span source around one <invoke>'s activation, the
// same otel.Tracer/tr.Start pattern
// agentflare-ai/agentml-go/stdin/namespace.go uses around its own
// namespace-handler operations.
var tracer = otel.Tracer("scxmlrt/invoke")

// isPlatformEvent reports whether name falls in the event namespaces
// spec.md §4.G.3 excludes from autoforwarding: an invoking session's own done.*/error.*
// bookkeeping must never leak into a child that has no business seeing
// it.
func isPlatformEvent(name string) bool {
	return strings.HasPrefix(name, "done.") || strings.HasPrefix(name, "error.")
}

// sessionEntry is everything Manager tracks for one live session —
// whether it is the top-level session or an invoked descendant.
type sessionEntry struct {
	graph      *model.Graph
	env        *action.Env
	queue      *queue.Session
	processors []scripthost.IOProcessorDescriptor

	pending []pendingInvoke
	active  map[string]*activeInvoke // invoke id -> active
	counter int
}

type pendingInvoke struct {
	stateIdx  model.StateIndex
	invokeIdx model.InvokeIndex
}

type activeInvoke struct {
	id          string
	stateIdx    model.StateIndex
	childID     string
	autoforward bool
	finalize    []model.ActionIndex
	child       *core.Session
}

// Manager implements core.InvokeManager and core.Router.
type Manager struct {
	mu       sync.Mutex
	host     *scripthost.Host
	sched    *scheduler.Scheduler
	resolver ModelResolver
	http     core.HTTPSender
	logger   *slog.Logger

	sessions map[string]*sessionEntry
}

// New constructs a Manager. resolver may be nil if the embedder never
// registers any <invoke>-bearing model; http may be nil to leave
// BasicHTTP sends/invokes resolving to error.communication.
func New(host *scripthost.Host, sched *scheduler.Scheduler, resolver ModelResolver, http core.HTTPSender, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		host:     host,
		sched:    sched,
		resolver: resolver,
		http:     http,
		logger:   logger,
		sessions: map[string]*sessionEntry{},
	}
}

// SetScheduler wires the scheduler Manager needs for CancelAll during
// invoke teardown. The driver constructs Manager and Scheduler in two
// steps, since scheduler.New itself needs Manager as its Deliverer.
func (m *Manager) SetScheduler(s *scheduler.Scheduler) {
	m.sched = s
}

// DeliverScheduled implements scheduler.Deliverer: once a delayed send
// becomes due, it is handed to its owning session's external queue,
// wherever in the invocation tree that session lives.
func (m *Manager) DeliverScheduled(sessionID string, ev queue.Event) error {
	se := m.entry(sessionID)
	if se == nil {
		return nil
	}
	se.queue.PushExternalBlocking(ev)
	return nil
}

// RegisterSession tells Manager about a session before it starts running
// — the root driver calls this once for the top-level session, and
// Manager calls it itself for every child session it creates.
func (m *Manager) RegisterSession(sessionID string, g *model.Graph, env *action.Env, q *queue.Session, processors []scripthost.IOProcessorDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = &sessionEntry{
		graph:      g,
		env:        env,
		queue:      q,
		processors: processors,
		active:     map[string]*activeInvoke{},
	}
}

// UnregisterSession drops bookkeeping for sessionID, used once a
// top-level session (or an invoke child whose own cancellation already
// tore down its Scheduler/Host state) is fully done.
func (m *Manager) UnregisterSession(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

func (m *Manager) entry(sessionID string) *sessionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// ActivateInvokes implements core.InvokeManager: it only records the
// newly-entered states' <invoke>s as pending. They start once
// FlushPending runs for this session, at the real macrostep boundary.
func (m *Manager) ActivateInvokes(sessionID string, states []model.StateIndex) error {
	se := m.entry(sessionID)
	if se == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stateIdx := range states {
		st := se.graph.State(stateIdx)
		for _, invIdx := range st.Invokes {
			se.pending = append(se.pending, pendingInvoke{stateIdx: stateIdx, invokeIdx: invIdx})
		}
	}
	return nil
}

// FlushPending starts every invoke still pending for sessionID.
func (m *Manager) FlushPending(sessionID string) error {
	m.mu.Lock()
	se := m.sessions[sessionID]
	if se == nil {
		m.mu.Unlock()
		return nil
	}
	pending := se.pending
	se.pending = nil
	m.mu.Unlock()

	for _, p := range pending {
		m.activate(sessionID, se, p)
	}
	return nil
}

// CancelInvokes implements core.InvokeManager: called with the states a
// microstep just exited. Any invoke still pending for one of those
// states is dropped before it ever starts; any already-active invoke
// owned by one of those states is torn down.
func (m *Manager) CancelInvokes(sessionID string, states []model.StateIndex) error {
	m.mu.Lock()
	se := m.sessions[sessionID]
	if se == nil {
		m.mu.Unlock()
		return nil
	}
	exiting := map[model.StateIndex]bool{}
	for _, s := range states {
		exiting[s] = true
	}

	var kept []pendingInvoke
	for _, p := range se.pending {
		if !exiting[p.stateIdx] {
			kept = append(kept, p)
		}
	}
	se.pending = kept

	var toTeardown []*activeInvoke
	for id, ai := range se.active {
		if exiting[ai.stateIdx] {
			toTeardown = append(toTeardown, ai)
			delete(se.active, id)
		}
	}
	m.mu.Unlock()

	for _, ai := range toTeardown {
		m.teardown(ai)
	}
	return nil
}

// CancelInvoke is the administrative/driver-facing cancellation by
// invoke id (spec.md §6.2's cancel_invoke), used directly by an embedder
// rather than by the interpreter's own exit-state processing.
func (m *Manager) CancelInvoke(sessionID, invokeID string) error {
	m.mu.Lock()
	se := m.sessions[sessionID]
	if se == nil {
		m.mu.Unlock()
		return fmt.Errorf("invoke: unknown session %q", sessionID)
	}
	ai, ok := se.active[invokeID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("invoke: %q has no active invoke %q", sessionID, invokeID)
	}
	delete(se.active, invokeID)
	m.mu.Unlock()

	m.teardown(ai)
	return nil
}

// ForwardEvent implements core.InvokeManager: every external event a
// session processes is forwarded to each of that session's autoforward
// children, except platform events and the event that would send a
// child's own output straight back to itself (spec.md open question #2).
func (m *Manager) ForwardEvent(sessionID string, ev queue.Event) error {
	if isPlatformEvent(ev.Name) {
		return nil
	}
	se := m.entry(sessionID)
	if se == nil {
		return nil
	}
	m.mu.Lock()
	var targets []*activeInvoke
	for _, ai := range se.active {
		if !ai.autoforward {
			continue
		}
		if ev.InvokeID == ai.id {
			continue // the event originated from this very child; do not feed it back
		}
		targets = append(targets, ai)
	}
	m.mu.Unlock()

	for _, ai := range targets {
		childEntry := m.entry(ai.childID)
		if childEntry == nil {
			continue
		}
		forwarded := ev
		forwarded.Origin = "#_scxml_" + sessionID
		forwarded.OriginType = "http://www.w3.org/TR/scxml/#SCXMLEventProcessor"
		_ = childEntry.queue.PushExternal(forwarded)
	}
	return nil
}

// RunFinalize implements core.InvokeManager: it runs the <finalize>
// block (if any) of whichever active invoke's child session produced
// ev, in the calling session's own script context, with _event already
// bound to ev by the caller — matching spec.md §4.G.4's ordering (before
// autoforwarding and before transition selection see the same event).
func (m *Manager) RunFinalize(sessionID string, ev queue.Event) error {
	se := m.entry(sessionID)
	if se == nil {
		return nil
	}
	m.mu.Lock()
	var finalize []model.ActionIndex
	for _, ai := range se.active {
		if ev.Origin == "#_scxml_"+ai.childID && len(ai.finalize) > 0 {
			finalize = ai.finalize
			break
		}
	}
	m.mu.Unlock()
	if finalize == nil {
		return nil
	}
	return se.env.ExecuteBlock(finalize)
}

// RouteToSession implements core.Router's "#_scxml_<sessionid>" form:
// any live session in the whole invocation tree can be addressed this
// way, not just this one's own parent/children.
func (m *Manager) RouteToSession(sessionID string, ev queue.Event) (bool, error) {
	se := m.entry(sessionID)
	if se == nil {
		return false, nil
	}
	if err := se.queue.PushExternal(ev); err != nil {
		return true, err
	}
	return true, nil
}

// RouteToInvoke implements core.Router's "#_<invokeid>" form: invoke ids
// are scoped to the session that declared them, so callerSessionID picks
// which session's active-invoke table to search.
func (m *Manager) RouteToInvoke(callerSessionID, invokeID string, ev queue.Event) (bool, error) {
	se := m.entry(callerSessionID)
	if se == nil {
		return false, nil
	}
	m.mu.Lock()
	ai, ok := se.active[invokeID]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	childEntry := m.entry(ai.childID)
	if childEntry == nil {
		return false, nil
	}
	ev.InvokeID = ""
	if err := childEntry.queue.PushExternal(ev); err != nil {
		return true, err
	}
	return true, nil
}

// ActiveInvokes lists sessionID's currently active invoke ids and each
// one's child session id, for spec.md §6.6 snapshotting; recursing into a
// child's own active invokes is the caller's job.
func (m *Manager) ActiveInvokes(sessionID string) map[string]string {
	se := m.entry(sessionID)
	if se == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(se.active))
	for id, ai := range se.active {
		out[id] = ai.childID
	}
	return out
}

// parentRoute implements core.ParentDispatcher for exactly one invoked
// child, routing its target="#_parent" sends back to the invoking
// session with InvokeID set so the parent can tell which child an event
// came from (used by RunFinalize and by a parent's own event handlers).
type parentRoute struct {
	mgr             *Manager
	parentSessionID string
	invokeID        string
}

func (r *parentRoute) SendToParent(ev queue.Event) error {
	se := r.mgr.entry(r.parentSessionID)
	if se == nil {
		return fmt.Errorf("invoke: parent session %q is gone", r.parentSessionID)
	}
	ev.InvokeID = r.invokeID
	return se.queue.PushExternal(ev)
}

// errorSink adapts scripthost.ErrorSink (a read-only-system-variable
// violation, for instance) into that session's own internal queue.
type errorSink struct {
	mgr       *Manager
	sessionID string
}

func (e *errorSink) RaiseError(eventName string, data value.Value) {
	se := e.mgr.entry(e.sessionID)
	if se == nil {
		return
	}
	se.queue.RaiseInternal(eventName, data)
}

// activate resolves and launches one invoke, per spec.md §4.G.1-2.
// Failure to resolve or start raises error.communication on the parent
// and leaves the invoke un-started rather than propagating a Go error
// out of FlushPending, which core.Session calls unconditionally.
func (m *Manager) activate(parentSessionID string, se *sessionEntry, p pendingInvoke) {
	inv := se.graph.Invoke(p.invokeIdx)

	ctx, span := tracer.Start(context.Background(), "invoke.activate",
		trace.WithAttributes(
			attribute.String("scxml.invoke.state", se.graph.State(p.stateIdx).ID),
			attribute.String("scxml.session_id", parentSessionID),
		))
	defer span.End()

	id := inv.ID
	if id == "" {
		m.mu.Lock()
		se.counter++
		id = fmt.Sprintf("%s.invoke%d", se.graph.State(p.stateIdx).ID, se.counter)
		m.mu.Unlock()
		if inv.IDLocation != "" {
			_ = se.env.Host.SetVariable(inv.IDLocation, value.FromString(id))
		}
	}

	if m.resolver == nil {
		m.raiseCommunication(se, id, fmt.Errorf("invoke: no model resolver configured"))
		return
	}
	childGraph, err := m.resolver.Resolve(ctx, inv, se.env)
	if err != nil {
		m.raiseCommunication(se, id, err)
		return
	}

	initData, err := m.resolveInitialData(se, inv)
	if err != nil {
		m.raiseCommunication(se, id, err)
		return
	}

	childID := uuid.NewString()
	sink := &errorSink{mgr: m, sessionID: childID}
	childHost := m.host.CreateSession(childID, parentSessionID, sink)

	childQueue := queue.NewSession(0)
	dispatcher := &core.SendDispatcher{
		SessionID: childID,
		Raiser:    childQueue,
		Scheduler: m.sched,
		Queue:     childQueue,
		Parent:    &parentRoute{mgr: m, parentSessionID: parentSessionID, invokeID: id},
		Router:    m,
		HTTP:      m.http,
	}
	childEnv := &action.Env{
		Graph:   childGraph,
		Host:    childHost,
		Raise:   childQueue,
		Send:    dispatcher,
		Cancel:  dispatcher,
		Logger:  m.logger,
		Context: ctx,
	}

	processors := se.processors
	if len(processors) == 0 {
		processors = []scripthost.IOProcessorDescriptor{{Name: "scxml"}}
	}
	if err := childHost.SetupSystemVariables(childID, processors); err != nil {
		m.raiseCommunication(se, id, err)
		return
	}
	for k, v := range initData {
		_ = childHost.SetVariable(k, v)
	}

	childSession := core.NewSession(childID, childGraph, childHost, childQueue, childEnv, m, m.logger)
	childSession.SetOnTerminate(func(data value.Value) {
		m.onChildDone(parentSessionID, id, childID, data)
	})

	m.mu.Lock()
	m.sessions[childID] = &sessionEntry{
		graph:      childGraph,
		env:        childEnv,
		queue:      childQueue,
		processors: processors,
		active:     map[string]*activeInvoke{},
	}
	se.active[id] = &activeInvoke{
		id:          id,
		stateIdx:    p.stateIdx,
		childID:     childID,
		autoforward: inv.Autoforward,
		finalize:    inv.Finalize,
		child:       childSession,
	}
	m.mu.Unlock()

	if err := childSession.Start(ctx); err != nil {
		m.raiseCommunication(se, id, err)
	}
}

// resolveInitialData evaluates an invoke's namelist (each name looked up
// as a variable in the parent's script context) and params (each
// location/expr evaluated in the parent's context), params overriding
// namelist entries on name collision per spec.md §4.G.1.
func (m *Manager) resolveInitialData(se *sessionEntry, inv *model.Invoke) (map[string]value.Value, error) {
	out := map[string]value.Value{}
	for _, name := range inv.Namelist {
		v, err := se.env.Host.EvaluateExpression(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	for _, p := range inv.Params {
		expr := p.Location
		if p.Expr != "" {
			expr = p.Expr
		}
		v, err := se.env.Host.EvaluateExpression(expr)
		if err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

func (m *Manager) raiseCommunication(se *sessionEntry, invokeID string, cause error) {
	if m.logger != nil {
		m.logger.Warn("invoke failed to start", "invoke_id", invokeID, "error", cause)
	}
	if se.env == nil || se.env.Raise == nil {
		return
	}
	data := value.NewObject()
	data.Set("invokeid", value.FromString(invokeID))
	data.Set("message", value.FromString(cause.Error()))
	se.env.Raise.RaiseInternal("error.communication", data)
}

// onChildDone delivers done.invoke.<id> to the invoking session once its
// child reaches a top-level <final> state, per spec.md §4.G.5. The
// invoke entry is left active (routing/finalize still work) until the
// invoking state is actually exited; a session that never re-enters
// that state simply leaks one idle child session, the same tradeoff the
// teacher's Machine makes for a stopped-but-unreferenced instance.
func (m *Manager) onChildDone(parentSessionID, invokeID, childID string, doneData value.Value) {
	se := m.entry(parentSessionID)
	if se == nil {
		return
	}
	ev := queue.Event{
		Name:       "done.invoke." + invokeID,
		Data:       doneData,
		InvokeID:   invokeID,
		Origin:     "#_scxml_" + childID,
		OriginType: "http://www.w3.org/TR/scxml/#SCXMLEventProcessor",
	}
	_ = se.queue.PushExternal(ev)
}

// teardown stops a child session's own scheduled sends and nested
// invokes, marks it terminated, and releases its script host — the
// sequence spec.md §4.G.6 requires when the invoking state is exited or
// the invoke is administratively cancelled.
func (m *Manager) teardown(ai *activeInvoke) {
	m.sched.CancelAll(ai.childID)

	m.mu.Lock()
	childEntry := m.sessions[ai.childID]
	var nested []*activeInvoke
	if childEntry != nil {
		for id, n := range childEntry.active {
			nested = append(nested, n)
			delete(childEntry.active, id)
		}
	}
	delete(m.sessions, ai.childID)
	m.mu.Unlock()

	for _, n := range nested {
		m.teardown(n)
	}

	ai.child.Terminate()
	m.host.ShutdownSession(ai.childID)
}

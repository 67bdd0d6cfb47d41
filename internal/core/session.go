// Package core implements the interpreter: the microstep/macrostep loop
// that drives a Model Graph (internal/model) forward against a script
// host (internal/scripthost), an action executor (internal/action), and
// a session's event queues (internal/queue), generalizing the teacher's
// single-active-path Machine into full SCXML configuration semantics
// (parallel regions, history, done events) over the arena-of-indices
// graph representation.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/comalice/scxmlrt/internal/action"
	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/queue"
	"github.com/comalice/scxmlrt/internal/scripthost"
	"github.com/comalice/scxmlrt/internal/value"
)

// ScriptHost is the subset of scripthost.Session the interpreter itself
// needs, beyond what it hands to action.Env for executable content.
type ScriptHost interface {
	action.ScriptHost
	SetCurrentEvent(name, kind, sendID, origin, originType, invokeID string, data value.Value) error
	SetupSystemVariables(sessionName string, processors []scripthost.IOProcessorDescriptor) error
}

// IOProcessorDescriptor is an alias for scripthost.IOProcessorDescriptor,
// kept here so callers that only import internal/core (the driver,
// internal/invoke) never need to spell out the scripthost import just to
// build a `_ioprocessors` entry.
type IOProcessorDescriptor = scripthost.IOProcessorDescriptor

// InvokeManager is the collaborator (internal/invoke) that owns
// <invoke>/<finalize>/autoforward lifecycle. The interpreter calls it at
// exactly the points spec.md §4.G requires: activate after the
// enclosing macrostep finishes entering new states, cancel the moment
// the invoking state is exited.
type InvokeManager interface {
	// ActivateInvokes records the <invoke>s of newly-entered states as
	// pending; they do not actually start until FlushPending is called
	// for this session, matching the "defer to the end of the
	// enclosing macrostep" rule of spec.md §4.G.1.
	ActivateInvokes(sessionID string, states []model.StateIndex) error
	// CancelInvokes drops any invoke of states still pending, and tears
	// down any that already started.
	CancelInvokes(sessionID string, states []model.StateIndex) error
	CancelInvoke(sessionID, invokeID string) error
	ForwardEvent(sessionID string, ev queue.Event) error
	// FlushPending starts every invoke recorded by ActivateInvokes that
	// is still pending once the calling session's eventless loop has
	// reached a fixpoint — the actual macrostep boundary.
	FlushPending(sessionID string) error
	// RunFinalize executes the <finalize> block of the invoke whose
	// child session produced ev, with _event bound to ev in the calling
	// (parent) session's script context, before that event is processed
	// any further.
	RunFinalize(sessionID string, ev queue.Event) error
}

// Configuration is the active state set: every compound/parallel
// ancestor of every active atomic/final leaf is always present too,
// the invariant the exit/entry set computations below depend on.
type Configuration map[model.StateIndex]bool

func (c Configuration) has(s model.StateIndex) bool { return c[s] }

func (c Configuration) sorted() []model.StateIndex {
	out := make([]model.StateIndex, 0, len(c))
	for s := range c {
		out = append(out, s)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Session is one running statechart instance.
type Session struct {
	mu sync.Mutex

	id     string
	graph  *model.Graph
	host   ScriptHost
	queue  *queue.Session
	env    *action.Env
	invoke InvokeManager
	logger *slog.Logger

	config   Configuration
	history  map[model.StateIndex][]model.StateIndex
	lateData map[model.StateIndex]bool

	started    bool
	terminated bool

	onTerminate func(value.Value)
}

// SetOnTerminate installs the callback invoked once, after this session
// reaches a top-level <final> state, with that final's resolved
// <donedata> (value.Undef if it declared none). internal/invoke uses
// this to raise done.invoke.<id> in the parent session.
func (s *Session) SetOnTerminate(fn func(value.Value)) {
	s.mu.Lock()
	s.onTerminate = fn
	s.mu.Unlock()
}

// Terminate marks the session as finished without running its own exit
// sequence; internal/invoke calls this to tear down a child session it
// is cancelling, after it has already cancelled that child's scheduled
// sends and nested invokes itself.
func (s *Session) Terminate() {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
}

// NewSession wires one running instance together. env's Raise/Send/Cancel
// fields should already point at this session's queue/scheduler before
// Start is called; env.Graph is expected to be the same graph passed
// here.
func NewSession(id string, g *model.Graph, host ScriptHost, q *queue.Session, env *action.Env, invoke InvokeManager, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:      id,
		graph:   g,
		host:    host,
		queue:   q,
		env:     env,
		invoke:  invoke,
		logger:  logger,
		config:   Configuration{},
		history:  map[model.StateIndex][]model.StateIndex{},
		lateData: map[model.StateIndex]bool{},
	}
}

func (s *Session) ID() string { return s.id }

// Configuration returns the currently active state ids, for inspection
// and snapshotting.
func (s *Session) Configuration() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.config))
	for _, idx := range s.config.sorted() {
		out = append(out, s.graph.State(idx).ID)
	}
	return out
}

// HistoryRecord is one history pseudo-state's recorded configuration, for
// spec.md §6.6 snapshotting.
type HistoryRecord struct {
	Shallow bool
	States  []string
}

// HistorySnapshot returns every recorded history pseudo-state's
// configuration, keyed by the history state's id.
func (s *Session) HistorySnapshot() map[string]HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]HistoryRecord{}
	for histIdx, states := range s.history {
		st := s.graph.State(histIdx)
		ids := make([]string, len(states))
		for i, idx := range states {
			ids[i] = s.graph.State(idx).ID
		}
		out[st.ID] = HistoryRecord{Shallow: st.Kind == model.HistoryShallow, States: ids}
	}
	return out
}

// RestoreHistory replaces recorded history state from a snapshot. Entries
// naming an id the graph no longer has are skipped rather than failing
// the whole restore.
func (s *Session) RestoreHistory(records map[string]HistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for histID, rec := range records {
		histIdx, err := s.graph.FindState(histID)
		if err != nil {
			continue
		}
		var idxs []model.StateIndex
		for _, id := range rec.States {
			if idx, err := s.graph.FindState(id); err == nil {
				idxs = append(idxs, idx)
			}
		}
		s.history[histIdx] = idxs
	}
}

// RestoreConfiguration replaces the active configuration directly from a
// snapshot's state id list, without running entry actions — restore
// recreates already-active state rather than transitioning into it. Every
// restored state (and its ancestors) is marked as having already run its
// late-binding data initialization, since the snapshot's variable
// bindings already reflect it.
func (s *Session) RestoreConfiguration(stateIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := Configuration{}
	for _, id := range stateIDs {
		idx, err := s.graph.FindState(id)
		if err != nil {
			return fmt.Errorf("core: restore: %w", err)
		}
		cfg[idx] = true
		for _, a := range s.graph.Ancestors(idx) {
			cfg[a] = true
			s.lateData[a] = true
		}
	}
	s.config = cfg
	s.started = true
	return nil
}

func (s *Session) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Start runs the top-level scripts, enters the default configuration
// from the root, and runs eventless transitions to a stable point,
// matching the teacher's Machine.Start sequencing of
// "validate, activate initial state, launch interpret loop" — except
// here the initial activation is itself a full entry-set computation
// rather than a single resolveInitialLeaf call.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	for _, src := range s.graph.Scripts {
		if _, err := s.host.ExecuteScript(src); err != nil {
			return fmt.Errorf("core: top-level script failed: %w", err)
		}
	}

	// early binding (the SCXML default) initializes every <data> element in
	// the whole document, in document order, before any state is entered;
	// late binding defers each state's own data items to that state's
	// first entry (see enterStates), per spec.md §4.C edge case #4.
	if s.graph.Binding != "late" {
		for i := range s.graph.DataItems {
			s.initDataItem(&s.graph.DataItems[i])
		}
	}

	entry := s.entrySetFor(s.graph.Root)
	s.enterStates(ctx, entry, nil)

	return s.stabilize(ctx)
}

// Step processes at most one event from the queue (after draining any
// eventless transitions first) and reports whether it made progress.
// A driver calls Step repeatedly (RunUntilIdle) until it returns false.
func (s *Session) Step(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false, nil
	}

	if err := s.stabilizeLocked(ctx); err != nil {
		return false, err
	}

	ev, ok := s.queue.Next()
	if !ok {
		return false, nil
	}

	if err := s.host.SetCurrentEvent(ev.Name, "platform", ev.SendID, ev.Origin, ev.OriginType, ev.InvokeID, ev.Data); err != nil {
		return false, err
	}

	if s.invoke != nil {
		// finalize runs in the parent's script context with _event
		// already bound to ev, ahead of everything else this event
		// triggers, per spec.md §4.G.4.
		_ = s.invoke.RunFinalize(s.id, ev)
		_ = s.invoke.ForwardEvent(s.id, ev)
	}

	transitions := s.selectTransitions(ev.Name)
	if len(transitions) > 0 {
		s.microstep(ctx, transitions)
	}

	if err := s.stabilizeLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// stabilize is Start's entry point into the shared
// drain-then-activate-invokes sequence.
func (s *Session) stabilize(ctx context.Context) error {
	return s.stabilizeLocked(ctx)
}

// stabilizeLocked drains eventless transitions to a fixpoint and then
// starts any invokes that are still pending at that point — the actual
// macrostep boundary spec.md §4.G.1-2 defers invoke activation to.
func (s *Session) stabilizeLocked(ctx context.Context) error {
	if err := s.runEventlessLoopLocked(ctx); err != nil {
		return err
	}
	if s.invoke != nil {
		_ = s.invoke.FlushPending(s.id)
	}
	return nil
}

// RunUntilIdle drives Step until no more progress is possible or the
// session terminates.
func (s *Session) RunUntilIdle(ctx context.Context) error {
	for {
		progressed, err := s.Step(ctx)
		if err != nil {
			return err
		}
		if !progressed || s.IsTerminated() {
			return nil
		}
	}
}

// runEventlessLoopLocked repeatedly selects and fires eventless
// (NULL-event) transitions until a fixpoint, per spec.md §4.H.2.
func (s *Session) runEventlessLoopLocked(ctx context.Context) error {
	for !s.terminated {
		transitions := s.selectTransitions("")
		if len(transitions) == 0 {
			return nil
		}
		s.microstep(ctx, transitions)
	}
	return nil
}

// selectTransitions returns the optimal transition set enabled by
// eventName ("" for an eventless/NULL step): for each active atomic or
// final state, the nearest enabled ancestor transition, conflicts
// between candidates resolved by keeping the earliest in document
// order and dropping any later candidate whose exit set overlaps it.
func (s *Session) selectTransitions(eventName string) []model.TransitionIndex {
	var candidates []model.TransitionIndex

	for _, atomIdx := range s.config.sorted() {
		st := s.graph.State(atomIdx)
		if st.Kind != model.Atomic && st.Kind != model.Final {
			continue
		}
		if t, ok := s.firstEnabledAncestorTransition(atomIdx, eventName); ok {
			candidates = append(candidates, t)
		}
	}

	var selected []model.TransitionIndex
	var exitUnion []model.StateIndex
	for _, tIdx := range candidates {
		t := s.graph.Transition(tIdx)
		lcca := s.lccaForTransition(t)
		exits := s.exitSet(t.Source, lcca)
		if conflicts(exitUnion, exits) {
			continue
		}
		selected = append(selected, tIdx)
		exitUnion = append(exitUnion, exits...)
	}
	return selected
}

func conflicts(a, b []model.StateIndex) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// firstEnabledAncestorTransition walks from atomIdx up through its
// ancestors (closest first), returning the first transition (in
// document order among that state's own Transitions) whose event
// pattern matches and whose guard (if any) evaluates true.
func (s *Session) firstEnabledAncestorTransition(atomIdx model.StateIndex, eventName string) (model.TransitionIndex, bool) {
	ancestors := s.graph.Ancestors(atomIdx)
	for i := len(ancestors) - 1; i >= 0; i-- {
		st := s.graph.State(ancestors[i])
		for _, tIdx := range st.Transitions {
			t := s.graph.Transition(tIdx)
			if !eventMatches(t.Events, eventName) {
				continue
			}
			if t.Cond != "" {
				v, err := s.env.Host.EvaluateExpression(t.Cond)
				if err != nil {
					s.reportGuardError(t.Cond, err)
					continue
				}
				if !v.ToBool() {
					continue
				}
			}
			return tIdx, true
		}
	}
	return model.NoTransition, false
}

func (s *Session) reportGuardError(cond string, cause error) {
	s.logger.Warn("guard evaluation failed", "cond", cond, "error", cause)
	data := value.NewObject()
	data.Set("cond", value.FromString(cond))
	data.Set("message", value.FromString(cause.Error()))
	s.queue.RaiseInternal("error.execution", data)
}

func eventMatches(patterns []string, eventName string) bool {
	if eventName == "" {
		return len(patterns) == 0
	}
	for _, p := range patterns {
		if model.MatchesEventPattern(p, eventName) {
			return true
		}
	}
	return false
}

func (s *Session) lccaForTransition(t *model.Transition) model.StateIndex {
	if len(t.Targets) == 0 {
		return t.Source // internal/targetless transition exits/enters nothing
	}
	lcca := s.graph.LCCA(t.Source, t.Targets)
	// An external transition whose targets all lie inside its own source
	// exits and re-enters that source, so its domain is one level up.
	if t.Kind == model.External && lcca == t.Source {
		if parent := s.graph.State(t.Source).Parent; parent != model.NoState {
			lcca = s.graph.LCCA(parent, t.Targets)
		}
	}
	return lcca
}

// exitSet returns every active state that this transition's firing
// removes from the configuration: the ancestor chain from (but not
// including) lcca down to source inclusive, plus every active
// descendant of source.
func (s *Session) exitSet(source, lcca model.StateIndex) []model.StateIndex {
	var out []model.StateIndex
	if source == lcca {
		// A targetless/internal transition (lcca defaults to source
		// itself) exits nothing.
		return out
	}
	seen := map[model.StateIndex]bool{}
	add := func(idx model.StateIndex) {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}

	for _, a := range s.graph.Ancestors(source) {
		if s.graph.IsProperDescendant(a, lcca) {
			add(a) // includes source itself
		}
	}
	for idx := range s.config {
		if s.graph.IsProperDescendant(idx, source) {
			add(idx)
		}
	}
	return out
}

// entrySetFor returns every state entered when descending into idx by
// default: idx itself, then (for Compound) its Initial child
// recursively, or (for Parallel) every child recursively.
func (s *Session) entrySetFor(idx model.StateIndex) []model.StateIndex {
	st := s.graph.State(idx)
	out := []model.StateIndex{idx}
	switch st.Kind {
	case model.Compound:
		if st.Initial != model.NoState {
			out = append(out, s.entrySetFor(st.Initial)...)
		}
	case model.Parallel:
		for _, c := range st.Children {
			out = append(out, s.entrySetFor(c)...)
		}
	}
	return out
}

// entrySetForHistory returns every state to enter to restore the
// recorded configuration under a history pseudo-state — the recorded
// states themselves plus, for shallow history, that child's own default
// descent, or for deep history, the ancestor chain from the history's
// parent down to each recorded leaf. With nothing recorded yet, it
// falls back to the history's default transition's targets.
func (s *Session) entrySetForHistory(histIdx model.StateIndex) []model.StateIndex {
	st := s.graph.State(histIdx)
	parent := st.Parent

	if recorded, ok := s.history[histIdx]; ok {
		var out []model.StateIndex
		if st.Kind == model.HistoryShallow {
			for _, r := range recorded {
				out = append(out, s.entrySetFor(r)...)
			}
			return out
		}
		for _, leaf := range recorded {
			for _, a := range s.graph.Ancestors(leaf) {
				if parent == model.NoState || s.graph.IsProperDescendant(a, parent) {
					out = append(out, a)
				}
			}
		}
		return out
	}

	if st.HistoryDefault == model.NoTransition {
		return nil
	}
	t := s.graph.Transition(st.HistoryDefault)
	var out []model.StateIndex
	for _, target := range t.Targets {
		out = append(out, s.entrySetFor(target)...)
	}
	return out
}

func (s *Session) microstep(ctx context.Context, transitions []model.TransitionIndex) {
	var allExits []model.StateIndex
	for _, tIdx := range transitions {
		t := s.graph.Transition(tIdx)
		lcca := s.lccaForTransition(t)
		allExits = append(allExits, s.exitSet(t.Source, lcca)...)
	}
	s.exitStates(ctx, allExits)

	for _, tIdx := range transitions {
		t := s.graph.Transition(tIdx)
		s.env.ExecuteBlock(t.Content)
	}

	var allEntries []model.StateIndex
	for _, tIdx := range transitions {
		t := s.graph.Transition(tIdx)
		if len(t.Targets) == 0 {
			continue
		}
		lcca := s.lccaForTransition(t)
		for _, target := range t.Targets {
			allEntries = append(allEntries, s.entrySetBetween(lcca, target)...)
		}
	}
	var newFinals []model.StateIndex
	for _, idx := range allEntries {
		if !s.config[idx] && s.graph.State(idx).Kind == model.Final {
			newFinals = append(newFinals, idx)
		}
	}
	s.enterStates(ctx, allEntries, transitions)

	s.checkParallelCompletion(ctx, newFinals)
}

// entrySetBetween expands a transition target into the ancestor chain
// from lcca (exclusive) to target, followed by target's own default
// descent — or, when target is a history pseudo-state, the recorded
// (or default) configuration it resolves to.
func (s *Session) entrySetBetween(lcca, target model.StateIndex) []model.StateIndex {
	st := s.graph.State(target)
	if st.Kind.IsHistory() {
		return s.entrySetForHistory(target)
	}

	var chain []model.StateIndex
	for _, a := range s.graph.Ancestors(target) {
		if a == target {
			continue
		}
		if s.graph.IsProperDescendant(a, lcca) {
			chain = append(chain, a)
		}
	}
	return append(chain, s.entrySetFor(target)...)
}

func (s *Session) exitStates(ctx context.Context, states []model.StateIndex) {
	ordered := dedupSortDesc(states)
	for _, idx := range ordered {
		if !s.config[idx] {
			continue
		}
		st := s.graph.State(idx)
		s.recordHistoryForParent(idx)
		for _, block := range st.OnExit {
			s.env.ExecuteBlock(block)
		}
		if s.invoke != nil {
			_ = s.invoke.CancelInvokes(s.id, []model.StateIndex{idx})
		}
		delete(s.config, idx)
	}
}

// recordHistoryForParent snapshots idx's active configuration into any
// history pseudo-state children of idx's parent, ahead of idx being
// exited, per spec.md §4.H.4's history-recording rule.
func (s *Session) recordHistoryForParent(idx model.StateIndex) {
	st := s.graph.State(idx)
	if st.Parent == model.NoState {
		return
	}
	parent := s.graph.State(st.Parent)
	for _, c := range parent.Children {
		cst := s.graph.State(c)
		if !cst.Kind.IsHistory() {
			continue
		}
		if cst.Kind == model.HistoryDeep {
			var leaves []model.StateIndex
			for active := range s.config {
				if s.graph.IsDescendantOrSelf(active, idx) {
					leaves = append(leaves, active)
				}
			}
			s.history[c] = leaves
		} else {
			s.history[c] = []model.StateIndex{idx}
		}
	}
}

func (s *Session) enterStates(ctx context.Context, states []model.StateIndex, firedBy []model.TransitionIndex) {
	ordered := dedupSortAsc(states)
	var entered []model.StateIndex
	for _, idx := range ordered {
		if s.config[idx] {
			continue
		}
		s.config[idx] = true
		entered = append(entered, idx)
		st := s.graph.State(idx)
		if s.graph.Binding == "late" {
			s.initLateDataItems(idx, st)
		}
		for _, block := range st.OnEntry {
			s.env.ExecuteBlock(block)
		}
		if st.Kind == model.Final {
			s.onFinalStateEntered(idx)
		}
	}
	if s.invoke != nil && len(entered) > 0 {
		_ = s.invoke.ActivateInvokes(s.id, entered)
	}
}

// onFinalStateEntered raises done.state.<parent> (with <donedata>, if
// any) once a <final> child is entered, per spec.md §4.H.4.
func (s *Session) onFinalStateEntered(finalIdx model.StateIndex) {
	st := s.graph.State(finalIdx)
	if st.Parent == s.graph.Root || st.Parent == model.NoState {
		s.terminated = true
		data := value.Undef
		if st.DoneData != nil {
			data = s.resolveDoneData(*st.DoneData)
		}
		if s.onTerminate != nil {
			s.onTerminate(data)
		}
		return
	}
	parent := s.graph.State(st.Parent)
	if parent.Kind != model.Compound {
		return
	}
	data := value.Undef
	if st.DoneData != nil {
		data = s.resolveDoneData(*st.DoneData)
	}
	s.queue.RaiseInternal("done.state."+parent.ID, data)
}

func (s *Session) raiseDoneState(parentIdx model.StateIndex) {
	parent := s.graph.State(parentIdx)
	data := value.Undef
	if parent.DoneData != nil {
		data = s.resolveDoneData(*parent.DoneData)
	}
	s.queue.RaiseInternal("done.state."+parent.ID, data)
}

// initLateDataItems initializes idx's own <data> elements, in document
// order, the first time idx is entered under late binding — before its
// onentry blocks run, per spec.md §4.C edge case #4.
func (s *Session) initLateDataItems(idx model.StateIndex, st *model.State) {
	if s.lateData[idx] {
		return
	}
	s.lateData[idx] = true
	for _, dIdx := range st.Data {
		s.initDataItem(s.graph.DataItem(dIdx))
	}
}

// initDataItem evaluates one <data> element's expr/inline content and
// binds it, reporting error.execution (never aborting the session) on
// failure. A `src` attribute names an external document to load, which
// is the loader's concern (spec.md §1); without one resolved already it
// simply leaves the item undefined.
func (s *Session) initDataItem(item *model.DataItem) {
	v := value.Undef
	switch {
	case item.Expr != "":
		ev, err := s.env.Host.EvaluateExpression(item.Expr)
		if err != nil {
			s.reportDataError(item.ID, err)
		} else {
			v = ev
		}
	case item.InlineContent != "":
		v = value.FromString(item.InlineContent)
	}
	if err := s.env.Host.SetVariable(item.ID, v); err != nil {
		s.reportDataError(item.ID, err)
	}
}

func (s *Session) reportDataError(id string, cause error) {
	s.logger.Warn("data item initialization failed", "id", id, "error", cause)
	data := value.NewObject()
	data.Set("data", value.FromString(id))
	data.Set("message", value.FromString(cause.Error()))
	s.queue.RaiseInternal("error.execution", data)
}

func (s *Session) resolveDoneData(dd model.DoneData) value.Value {
	obj := value.NewObject()
	if dd.Content != "" {
		if v, err := s.env.Host.EvaluateExpression(dd.Content); err == nil {
			return v
		}
	}
	for _, p := range dd.Params {
		expr := p.Location
		if p.Expr != "" {
			expr = p.Expr
		}
		v, err := s.env.Host.EvaluateExpression(expr)
		if err != nil {
			continue
		}
		obj.Set(p.Name, v)
	}
	return obj
}

// checkParallelCompletion raises done.state.<parallel> once every
// region of an active parallel state has reached one of its own final
// states. Only parallels containing one of newFinals (the final states
// this microstep entered) are considered, so each completion is
// announced once.
func (s *Session) checkParallelCompletion(ctx context.Context, newFinals []model.StateIndex) {
	for idx := range s.config {
		st := s.graph.State(idx)
		if st.Kind != model.Parallel {
			continue
		}
		completedHere := false
		for _, f := range newFinals {
			if s.graph.IsProperDescendant(f, idx) {
				completedHere = true
				break
			}
		}
		if !completedHere {
			continue
		}
		allDone := true
		for _, region := range st.Children {
			if !s.regionIsDone(region) {
				allDone = false
				break
			}
		}
		if allDone {
			s.raiseDoneState(idx)
		}
	}
}

func (s *Session) regionIsDone(region model.StateIndex) bool {
	for active := range s.config {
		if !s.graph.IsDescendantOrSelf(active, region) {
			continue
		}
		if s.graph.State(active).Kind == model.Final {
			return true
		}
	}
	return false
}

func dedupSortAsc(states []model.StateIndex) []model.StateIndex {
	seen := map[model.StateIndex]bool{}
	var out []model.StateIndex
	for _, s := range states {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func dedupSortDesc(states []model.StateIndex) []model.StateIndex {
	out := dedupSortAsc(states)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// delayFromSpec resolves a <send> delay attribute/expr into a
// time.Duration, used by the send dispatcher (dispatch.go) that this
// session's action.Env.Send implementation wires up.
func delayFromSpec(delay string) (time.Duration, error) {
	if delay == "" {
		return 0, nil
	}
	return time.ParseDuration(delay)
}

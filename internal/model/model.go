// Package model implements the read-only-after-load Model Graph: states,
// transitions, executable content, invokes and data items, addressed by
// integer index into arena slices rather than by pointer.
//
// The teacher's original state tree used parent back-pointers
// (*State.Parent) tangled with child maps, which is exactly the cyclic
// shared-pointer pattern this engine's design notes call out for
// re-architecture. Here every relationship — parent, child, transition
// source/target — is an index into a slice owned by the Graph, so the
// whole graph is trivially copyable by reference and safe to share
// read-only across sessions (including reused `src` invoke targets).
package model

import (
	"fmt"
	"strings"
)

type StateIndex int

const NoState StateIndex = -1

type TransitionIndex int

const NoTransition TransitionIndex = -1

type ActionIndex int

const NoAction ActionIndex = -1

type InvokeIndex int

type DataItemIndex int

// StateKind enumerates the SCXML state varieties.
type StateKind int

const (
	Atomic StateKind = iota
	Compound
	Parallel
	Final
	HistoryShallow
	HistoryDeep
)

func (k StateKind) String() string {
	switch k {
	case Atomic:
		return "atomic"
	case Compound:
		return "compound"
	case Parallel:
		return "parallel"
	case Final:
		return "final"
	case HistoryShallow:
		return "history(shallow)"
	case HistoryDeep:
		return "history(deep)"
	default:
		return "unknown"
	}
}

func (k StateKind) IsHistory() bool { return k == HistoryShallow || k == HistoryDeep }

// TransitionKind distinguishes SCXML's internal vs. external transitions
// (affects whether the source state itself is re-entered/re-exited).
type TransitionKind int

const (
	External TransitionKind = iota
	Internal
)

// DoneData is the payload template attached to a Final state.
type DoneData struct {
	// Content, when non-empty, is a literal inline expression/content string.
	Content string
	// Params evaluate namelist-style key/expr pairs into the donedata object.
	Params []ParamSpec
}

// State is one node of the Model Graph.
type State struct {
	ID       string
	Kind     StateKind
	Parent   StateIndex
	Children []StateIndex // document order

	// Initial is the default child for Compound, resolved at load time to
	// "first child in document order" when the source left it unset
	// (spec.md §6.1 parser tolerance). Parallel states enter every child
	// and do not use it.
	Initial StateIndex
	// InitialActions holds executable content of an explicit
	// <initial><transition> element. Builder does not populate it and
	// internal/core does not run it.
	InitialActions []ActionIndex

	OnEntry [][]ActionIndex // ordered onentry blocks, each independently short-circuited
	OnExit  [][]ActionIndex

	Transitions []TransitionIndex // document order
	Invokes     []InvokeIndex
	Data        []DataItemIndex

	DoneData *DoneData // non-nil only for Final states that declare one

	// HistoryDefault is the transition taken when a History pseudo-state
	// has no recorded configuration yet.
	HistoryDefault TransitionIndex
}

// Transition is one edge of the Model Graph.
type Transition struct {
	Source StateIndex
	// Events holds the raw space-separated event descriptors from the
	// `event` attribute; empty means eventless (drives the NULL fixpoint).
	Events []string
	Cond   string // guard expression; "" means unconditionally true
	// Targets is empty for an internal/targetless transition.
	Targets []StateIndex
	Content []ActionIndex
	Kind    TransitionKind
}

type ParamSpec struct {
	Name     string
	Expr     string
	Location string
}

// Invoke describes a <invoke> element attached to a state.
type Invoke struct {
	ID          string
	IDLocation  string
	Type        string
	TypeExpr    string
	Src         string
	SrcExpr     string
	Namelist    []string
	Params      []ParamSpec
	Content     string // inline <content> literal, empty if src/srcexpr used
	ContentExpr string
	Finalize    []ActionIndex
	Autoforward bool
	State       StateIndex
}

// DataItem describes a <data> element.
type DataItem struct {
	ID            string
	Expr          string
	Src           string
	InlineContent string
}

// Graph is the full, read-only, shareable Model Graph.
type Graph struct {
	States      []State
	Transitions []Transition
	Actions     []Action
	Invokes     []Invoke
	DataItems   []DataItem

	ByID    map[string]StateIndex
	Root    StateIndex
	Binding string // "early" or "late", default "early" per SCXML
	Scripts []string // top-level <script> source, document order
}

func (g *Graph) FindState(id string) (StateIndex, error) {
	idx, ok := g.ByID[id]
	if !ok {
		return NoState, fmt.Errorf("model: state %q not found", id)
	}
	return idx, nil
}

func (g *Graph) State(idx StateIndex) *State { return &g.States[idx] }

func (g *Graph) Transition(idx TransitionIndex) *Transition { return &g.Transitions[idx] }

func (g *Graph) Action(idx ActionIndex) *Action { return &g.Actions[idx] }

func (g *Graph) Invoke(idx InvokeIndex) *Invoke { return &g.Invokes[idx] }

func (g *Graph) DataItem(idx DataItemIndex) *DataItem { return &g.DataItems[idx] }

// Ancestors returns idx's ancestor chain, root first, idx last (inclusive).
func (g *Graph) Ancestors(idx StateIndex) []StateIndex {
	var chain []StateIndex
	for cur := idx; cur != NoState; cur = g.States[cur].Parent {
		chain = append(chain, cur)
	}
	// reverse to root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// IsProperDescendant reports whether descendant is strictly below ancestor.
func (g *Graph) IsProperDescendant(descendant, ancestor StateIndex) bool {
	for cur := g.States[descendant].Parent; cur != NoState; cur = g.States[cur].Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

func (g *Graph) IsDescendantOrSelf(descendant, ancestor StateIndex) bool {
	return descendant == ancestor || g.IsProperDescendant(descendant, ancestor)
}

// LCCA computes the Least Common Compound Ancestor of source and all
// targets: the nearest Compound/Parallel/root ancestor containing all of
// them. Returns NoState only if the graph has no common root, which
// cannot happen for a validated Graph (every state is rooted).
func (g *Graph) LCCA(source StateIndex, targets []StateIndex) StateIndex {
	candidates := g.Ancestors(source)
	for i := len(candidates) - 1; i >= 0; i-- {
		anc := candidates[i]
		k := g.States[anc].Kind
		if k != Compound && k != Parallel && anc != g.Root {
			continue
		}
		ok := true
		for _, t := range targets {
			if !g.IsDescendantOrSelf(t, anc) {
				ok = false
				break
			}
		}
		if ok {
			return anc
		}
	}
	return g.Root
}

// DefaultEntryLeaves resolves the default (first-child / <initial>)
// leaf descendants reached when entering a Compound/Parallel/root state
// without a more specific target, recursing through nested compounds and
// fanning out into every region of a Parallel.
func (g *Graph) DefaultEntryLeaves(idx StateIndex) []StateIndex {
	s := &g.States[idx]
	switch s.Kind {
	case Atomic, Final:
		return []StateIndex{idx}
	case Parallel:
		var out []StateIndex
		for _, child := range s.Children {
			out = append(out, g.DefaultEntryLeaves(child)...)
		}
		return out
	case Compound:
		if s.Initial == NoState {
			return []StateIndex{idx}
		}
		return g.DefaultEntryLeaves(s.Initial)
	default:
		return []StateIndex{idx}
	}
}

// MatchesEventPattern implements spec.md's event-name matching: exact
// match, trailing ".*" prefix wildcard, or the bare "*" wildcard. Platform
// events are matched the same way callers match any other name; excluding
// them from consideration (e.g. autoforward) is the caller's job.
func MatchesEventPattern(pattern, eventName string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "*" {
		return true
	}
	if pattern == eventName {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*") // keep trailing '.'
		return strings.HasPrefix(eventName+".", prefix) || eventName == strings.TrimSuffix(prefix, ".")
	}
	// bare segment prefix without explicit wildcard never matches more
	// than itself (spec.md open question #1: "done" must not match
	// "done.state.x").
	return false
}

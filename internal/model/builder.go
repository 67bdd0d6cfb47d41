package model

import (
	"fmt"
	"strings"
)

// Builder assembles a Graph from a fluent, stack-based description, the
// same shape the teacher's primitives.MachineBuilder uses for its own
// config tree. It stands in for the out-of-scope SCXML XML parser
// (spec.md §6.1): callers (tests, examples, or a real parser) describe
// the document and Finalize resolves every ID reference into an index.
type Builder struct {
	specs   map[string]*stateSpec
	order   []string // document order of all state ids seen
	stack   []string
	binding string
	scripts []string
	err     error
}

type transSpec struct {
	events  []string
	cond    string
	targets []string
	content []ActionSpec
	kind    TransitionKind
}

type invokeSpec struct {
	id, idLocation         string
	typ, typeExpr          string
	src, srcExpr           string
	namelist               []string
	params                 []ParamSpec
	content, contentExpr   string
	finalize               []ActionSpec
	autoforward            bool
}

type stateSpec struct {
	id       string
	kind     StateKind
	parent   string
	initial  string // explicit initial child id, "" => first child in doc order
	onEntry  [][]ActionSpec
	onExit   [][]ActionSpec
	trans    []transSpec
	invokes  []invokeSpec
	data     []DataItem
	children []string

	doneData *DoneData

	historyDefaultTargets []string
	historyDefaultContent []ActionSpec
}

// NewBuilder starts a Graph whose document root has the given id and is
// always Compound, as the SCXML <scxml> root effectively is.
func NewBuilder(rootID string) *Builder {
	b := &Builder{specs: map[string]*stateSpec{}, binding: "early"}
	b.addState(rootID, Compound, "")
	b.stack = []string{rootID}
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) top() *stateSpec {
	if len(b.stack) == 0 {
		b.fail(fmt.Errorf("model builder: no open state"))
		return nil
	}
	return b.specs[b.stack[len(b.stack)-1]]
}

func (b *Builder) addState(id string, kind StateKind, parent string) *stateSpec {
	if _, exists := b.specs[id]; exists {
		b.fail(fmt.Errorf("model builder: duplicate state id %q", id))
		return b.specs[id]
	}
	s := &stateSpec{id: id, kind: kind, parent: parent}
	b.specs[id] = s
	b.order = append(b.order, id)
	if parent != "" {
		if ps, ok := b.specs[parent]; ok {
			ps.children = append(ps.children, id)
		}
	}
	return s
}

// Begin opens a new Compound/Parallel state as a child of the current
// scope and makes it the new current scope; pair with End.
func (b *Builder) Begin(id string, kind StateKind) *Builder {
	parent := ""
	if len(b.stack) > 0 {
		parent = b.stack[len(b.stack)-1]
	}
	b.addState(id, kind, parent)
	b.stack = append(b.stack, id)
	return b
}

// End closes the most recently Begin'd scope.
func (b *Builder) End() *Builder {
	if len(b.stack) <= 1 {
		b.fail(fmt.Errorf("model builder: End without matching Begin"))
		return b
	}
	b.stack = b.stack[:len(b.stack)-1]
	return b
}

// Leaf adds an Atomic/Final/History state as a child of the current scope
// without changing scope.
func (b *Builder) Leaf(id string, kind StateKind) *Builder {
	parent := ""
	if len(b.stack) > 0 {
		parent = b.stack[len(b.stack)-1]
	}
	b.addState(id, kind, parent)
	return b
}

// In temporarily makes id (already added) the scope for the duration of
// fn, useful for attaching transitions/entry actions to a state other
// than the current top without disturbing the stack.
func (b *Builder) In(id string, fn func(*Builder)) *Builder {
	b.stack = append(b.stack, id)
	fn(b)
	b.stack = b.stack[:len(b.stack)-1]
	return b
}

// Initial sets the current scope's default child.
func (b *Builder) Initial(childID string) *Builder {
	if s := b.top(); s != nil {
		s.initial = childID
	}
	return b
}

// Binding sets the datamodel binding mode ("early" or "late").
func (b *Builder) Binding(mode string) *Builder {
	b.binding = mode
	return b
}

// Script appends a top-level <script> source, document order.
func (b *Builder) Script(src string) *Builder {
	b.scripts = append(b.scripts, src)
	return b
}

// Entry appends one ordered onentry block to the current scope.
func (b *Builder) Entry(actions ...ActionSpec) *Builder {
	if s := b.top(); s != nil {
		s.onEntry = append(s.onEntry, actions)
	}
	return b
}

// Exit appends one ordered onexit block to the current scope.
func (b *Builder) Exit(actions ...ActionSpec) *Builder {
	if s := b.top(); s != nil {
		s.onExit = append(s.onExit, actions)
	}
	return b
}

// On adds a transition on the current scope. event is a space-separated
// list of event descriptors ("" means eventless). targets empty means
// internal/targetless.
func (b *Builder) On(event, cond string, content []ActionSpec, targets ...string) *Builder {
	return b.OnKind(event, cond, External, content, targets...)
}

func (b *Builder) OnKind(event, cond string, kind TransitionKind, content []ActionSpec, targets ...string) *Builder {
	s := b.top()
	if s == nil {
		return b
	}
	var events []string
	if strings.TrimSpace(event) != "" {
		events = strings.Fields(event)
	}
	s.trans = append(s.trans, transSpec{
		events:  events,
		cond:    cond,
		targets: append([]string(nil), targets...),
		content: content,
		kind:    kind,
	})
	return b
}

// Data adds a <data> item to the current scope.
func (b *Builder) Data(id, expr string) *Builder {
	if s := b.top(); s != nil {
		s.data = append(s.data, DataItem{ID: id, Expr: expr})
	}
	return b
}

// DataInline adds a <data> item carrying inline (XML/JSON-shaped) content.
func (b *Builder) DataInline(id, content string) *Builder {
	if s := b.top(); s != nil {
		s.data = append(s.data, DataItem{ID: id, InlineContent: content})
	}
	return b
}

// DoneData attaches donedata to the current (Final) scope.
func (b *Builder) DoneData(content string, params ...ParamSpec) *Builder {
	if s := b.top(); s != nil {
		s.doneData = &DoneData{Content: content, Params: params}
	}
	return b
}

// HistoryDefault sets the transition a History pseudo-state takes when no
// recorded configuration exists yet.
func (b *Builder) HistoryDefault(content []ActionSpec, targets ...string) *Builder {
	if s := b.top(); s != nil {
		s.historyDefaultTargets = targets
		s.historyDefaultContent = content
	}
	return b
}

// Invoke attaches an <invoke> to the current scope.
func (b *Builder) Invoke(spec InvokeBuilder) *Builder {
	if s := b.top(); s != nil {
		s.invokes = append(s.invokes, invokeSpec{
			id: spec.ID, idLocation: spec.IDLocation,
			typ: spec.Type, typeExpr: spec.TypeExpr,
			src: spec.Src, srcExpr: spec.SrcExpr,
			namelist: spec.Namelist, params: spec.Params,
			content: spec.Content, contentExpr: spec.ContentExpr,
			finalize: spec.Finalize, autoforward: spec.Autoforward,
		})
	}
	return b
}

// InvokeBuilder is the plain-data form of an <invoke> element.
type InvokeBuilder struct {
	ID, IDLocation       string
	Type, TypeExpr       string
	Src, SrcExpr         string
	Namelist             []string
	Params               []ParamSpec
	Content, ContentExpr string
	Finalize             []ActionSpec
	Autoforward          bool
}

// Finalize resolves every ID reference and produces an immutable Graph.
func (b *Builder) Finalize() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	g := &Graph{ByID: map[string]StateIndex{}, Binding: b.binding, Scripts: append([]string(nil), b.scripts...)}

	// Pass 1: assign indices in document order.
	for i, id := range b.order {
		g.ByID[id] = StateIndex(i)
		g.States = append(g.States, State{ID: id, Initial: NoState, HistoryDefault: NoTransition})
	}

	resolve := func(id string) (StateIndex, error) {
		idx, ok := g.ByID[id]
		if !ok {
			return NoState, fmt.Errorf("model builder: unresolved state reference %q", id)
		}
		return idx, nil
	}

	// Pass 2: fill in each state's fields, flattening nested action specs.
	for _, id := range b.order {
		spec := b.specs[id]
		idx := g.ByID[id]
		st := &g.States[idx]
		st.Kind = spec.kind

		if spec.parent != "" {
			pIdx, err := resolve(spec.parent)
			if err != nil {
				return nil, err
			}
			st.Parent = pIdx
		} else {
			st.Parent = NoState
			g.Root = idx
		}

		for _, c := range spec.children {
			cIdx, err := resolve(c)
			if err != nil {
				return nil, err
			}
			st.Children = append(st.Children, cIdx)
		}

		if spec.initial != "" {
			iIdx, err := resolve(spec.initial)
			if err != nil {
				return nil, err
			}
			st.Initial = iIdx
		} else if spec.kind == Compound && len(st.Children) > 0 {
			st.Initial = st.Children[0]
		}

		for _, block := range spec.onEntry {
			st.OnEntry = append(st.OnEntry, flattenActions(block, g))
		}
		for _, block := range spec.onExit {
			st.OnExit = append(st.OnExit, flattenActions(block, g))
		}

		for _, d := range spec.data {
			g.DataItems = append(g.DataItems, d)
			st.Data = append(st.Data, DataItemIndex(len(g.DataItems)-1))
		}

		st.DoneData = spec.doneData

		for _, ts := range spec.trans {
			var targets []StateIndex
			for _, t := range ts.targets {
				tIdx, err := resolve(t)
				if err != nil {
					return nil, err
				}
				targets = append(targets, tIdx)
			}
			g.Transitions = append(g.Transitions, Transition{
				Source:  idx,
				Events:  ts.events,
				Cond:    ts.cond,
				Targets: targets,
				Content: flattenActions(ts.content, g),
				Kind:    ts.kind,
			})
			st.Transitions = append(st.Transitions, TransitionIndex(len(g.Transitions)-1))
		}

		if spec.kind.IsHistory() && len(spec.historyDefaultTargets) > 0 {
			var targets []StateIndex
			for _, t := range spec.historyDefaultTargets {
				tIdx, err := resolve(t)
				if err != nil {
					return nil, err
				}
				targets = append(targets, tIdx)
			}
			g.Transitions = append(g.Transitions, Transition{
				Source:  idx,
				Targets: targets,
				Content: flattenActions(spec.historyDefaultContent, g),
				Kind:    External,
			})
			st.HistoryDefault = TransitionIndex(len(g.Transitions) - 1)
		}

		for _, inv := range spec.invokes {
			g.Invokes = append(g.Invokes, Invoke{
				ID: inv.id, IDLocation: inv.idLocation,
				Type: inv.typ, TypeExpr: inv.typeExpr,
				Src: inv.src, SrcExpr: inv.srcExpr,
				Namelist: inv.namelist, Params: inv.params,
				Content: inv.content, ContentExpr: inv.contentExpr,
				Finalize: flattenActions(inv.finalize, g), Autoforward: inv.autoforward,
				State: idx,
			})
			st.Invokes = append(st.Invokes, InvokeIndex(len(g.Invokes)-1))
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// flattenActions recursively appends ActionSpec trees into g.Actions in a
// single arena, returning the indices assigned to the top-level specs.
func flattenActions(specs []ActionSpec, g *Graph) []ActionIndex {
	if len(specs) == 0 {
		return nil
	}
	out := make([]ActionIndex, len(specs))
	for i, s := range specs {
		a := Action{
			Kind: s.Kind, Location: s.Location, Expr: s.Expr, Source: s.Source,
			Label: s.Label, Level: s.Level, EventName: s.EventName,
			Send: s.Send, SendID: s.SendID, SendIDExpr: s.SendIDExpr,
			Array: s.Array, Item: s.Item, Index: s.Index,
		}
		for _, br := range s.Branches {
			a.Branches = append(a.Branches, IfBranch{Cond: br.Cond, Actions: flattenActions(br.Actions, g)})
		}
		a.Body = flattenActions(s.Body, g)
		g.Actions = append(g.Actions, a)
		out[i] = ActionIndex(len(g.Actions) - 1)
	}
	return out
}

package model

import "fmt"

// Validate checks the structural invariants spec.md §3.2 requires of a
// loaded Model Graph: every Compound has exactly one Initial, every
// Parallel has at least one region, history pseudo-states only appear
// under Compound/Parallel and carry a default transition, and every
// transition's targets either are all empty (internal/targetless) or all
// resolve to real states.
func (g *Graph) Validate() error {
	if g.Root == NoState {
		return fmt.Errorf("model: graph has no root state")
	}
	for i := range g.States {
		s := &g.States[i]
		idx := StateIndex(i)
		switch s.Kind {
		case Compound:
			if len(s.Children) == 0 {
				return fmt.Errorf("model: compound state %q has no children", s.ID)
			}
			if s.Initial == NoState {
				return fmt.Errorf("model: compound state %q has no resolved initial child", s.ID)
			}
			if !isChildOf(g, idx, s.Initial) {
				return fmt.Errorf("model: compound state %q initial is not one of its children", s.ID)
			}
		case Parallel:
			if len(s.Children) == 0 {
				return fmt.Errorf("model: parallel state %q has no regions", s.ID)
			}
			for _, c := range s.Children {
				ck := g.States[c].Kind
				if ck != Compound && ck != Parallel {
					return fmt.Errorf("model: parallel state %q region %q must be compound or parallel", s.ID, g.States[c].ID)
				}
			}
		case HistoryShallow, HistoryDeep:
			parent := s.Parent
			if parent == NoState {
				return fmt.Errorf("model: history state %q has no parent", s.ID)
			}
			pk := g.States[parent].Kind
			if pk != Compound && pk != Parallel {
				return fmt.Errorf("model: history state %q must be a child of a compound or parallel state", s.ID)
			}
			if s.HistoryDefault == NoTransition {
				return fmt.Errorf("model: history state %q has no default transition", s.ID)
			}
		}
	}

	for i := range g.Transitions {
		t := &g.Transitions[i]
		if len(t.Targets) == 0 {
			continue // internal/targetless transition is valid
		}
		for _, target := range t.Targets {
			if target < 0 || int(target) >= len(g.States) {
				return fmt.Errorf("model: transition from %q has out-of-range target", g.States[t.Source].ID)
			}
		}
	}

	return nil
}

func isChildOf(g *Graph, parent, child StateIndex) bool {
	for _, c := range g.States[parent].Children {
		if c == child {
			return true
		}
	}
	return false
}

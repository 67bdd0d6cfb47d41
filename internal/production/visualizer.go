// Package production provides production integrations: persistence, event publishing, visualization.
// Implements core interfaces using stdlib where possible.
package production

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/comalice/scxmlrt/internal/model"
)

// Visualizer renders a Model Graph's structure and a session's active
// configuration for inspection/debugging.
type Visualizer interface {
	ExportDOT(g *model.Graph, current []string) string
	ExportJSON(g *model.Graph) ([]byte, error)
}

// DefaultVisualizer is the stdlib-only implementation of Visualizer.
type DefaultVisualizer struct{}

// ExportDOT generates Graphviz DOT source for g, highlighting the states
// named in current (as returned by Session.Configuration).
func (v *DefaultVisualizer) ExportDOT(g *model.Graph, current []string) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph Statechart {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	active := make(map[string]bool, len(current))
	for _, id := range current {
		active[id] = true
	}

	renderState(&buf, g, g.Root, active)

	for _, t := range g.Transitions {
		from := g.State(t.Source).ID
		label := strings.Join(t.Events, " ")
		if label == "" {
			label = "ε"
		}
		for _, target := range t.Targets {
			to := g.State(target).ID
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", from, to, label)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// exportableGraph is the JSON-friendly projection of a Graph: the arena's
// index-based cross-references are resolved to ids so the output is
// readable without the Graph alongside it.
type exportableGraph struct {
	Root   string            `json:"root"`
	Binding string           `json:"binding,omitempty"`
	States []exportableState `json:"states"`
}

type exportableState struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
}

// ExportJSON serializes g's state tree to JSON.
func (v *DefaultVisualizer) ExportJSON(g *model.Graph) ([]byte, error) {
	out := exportableGraph{Root: g.State(g.Root).ID, Binding: g.Binding}
	for i := range g.States {
		st := &g.States[i]
		es := exportableState{ID: st.ID, Kind: st.Kind.String()}
		if st.Parent != model.NoState {
			es.Parent = g.State(st.Parent).ID
		}
		for _, c := range st.Children {
			es.Children = append(es.Children, g.State(c).ID)
		}
		out.States = append(out.States, es)
	}
	return json.MarshalIndent(out, "", "  ")
}

// renderState recursively renders g's state tree rooted at idx.
func renderState(buf *bytes.Buffer, g *model.Graph, idx model.StateIndex, active map[string]bool) {
	st := g.State(idx)
	if len(st.Children) > 0 {
		clusterID := fmt.Sprintf("cluster_%s", st.ID)
		fmt.Fprintf(buf, "  subgraph %s {\n", clusterID)
		style := ""
		if active[st.ID] {
			style = " style=filled fillcolor=orange"
		}
		fmt.Fprintf(buf, "    label=%q%s;\n", fmt.Sprintf("%s (%s)", st.ID, st.Kind), style)
		if st.Kind == model.Parallel {
			buf.WriteString("    style=filled fillcolor=lightblue;\n")
		}
		fmt.Fprintf(buf, "    %q [label=%q shape=ellipse%s];\n", st.ID, st.ID, style)
		for _, child := range st.Children {
			renderState(buf, g, child, active)
		}
		buf.WriteString("  }\n")
		return
	}

	style := ""
	if active[st.ID] {
		style = " style=filled fillcolor=lightgreen"
	}
	fmt.Fprintf(buf, "  %q [label=%q%s];\n", st.ID, st.ID, style)
}

// Tests for DefaultVisualizer DOT export and hierarchy rendering.
package production

import (
	"strings"
	"testing"

	"github.com/comalice/scxmlrt/internal/model"
)

func TestDefaultVisualizer_ExportDOT_Simple(t *testing.T) {
	v := &DefaultVisualizer{}
	b := model.NewBuilder("root")
	b.Initial("s1")
	b.Leaf("s1", model.Atomic).In("s1", func(b *model.Builder) {
		b.On("e1", "", nil, "s2")
	})
	b.Leaf("s2", model.Atomic)
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	dot := v.ExportDOT(g, []string{"root", "s2"})

	if !strings.Contains(dot, `digraph Statechart {`) {
		t.Error("Missing DOT header")
	}
	if !strings.Contains(dot, `"s1"`) || !strings.Contains(dot, `"s2"`) {
		t.Error("Missing state nodes")
	}
	if !strings.Contains(dot, `"s1" -> "s2" [label="e1"]`) {
		t.Error("Missing transition edge")
	}
	if !strings.Contains(dot, `fillcolor=lightgreen`) {
		t.Error("Missing active state highlight")
	}
}

func TestDefaultVisualizer_ExportDOT_Hierarchy(t *testing.T) {
	v := &DefaultVisualizer{}
	b := model.NewBuilder("root")
	b.Initial("parent")
	b.Begin("parent", model.Compound)
	b.Initial("child1")
	b.Leaf("child1", model.Atomic)
	b.Leaf("child2", model.Atomic)
	b.End()
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	dot := v.ExportDOT(g, []string{"root", "parent", "child1"})

	if !strings.Contains(dot, `subgraph cluster_parent {`) {
		t.Error("Missing compound cluster")
	}
	if !strings.Contains(dot, `"parent"`) || !strings.Contains(dot, `"child1"`) || !strings.Contains(dot, `"child2"`) {
		t.Error("Missing hierarchical states")
	}
	if !strings.Contains(dot, `fillcolor=orange`) {
		t.Error("Missing parent active highlight")
	}
}

func TestDefaultVisualizer_ExportDOT_Parallel(t *testing.T) {
	v := &DefaultVisualizer{}
	b := model.NewBuilder("root")
	b.Initial("parallel")
	b.Begin("parallel", model.Parallel)
	b.Begin("r1", model.Compound)
	b.Leaf("r1s1", model.Atomic)
	b.End()
	b.Begin("r2", model.Compound)
	b.Leaf("r2s1", model.Atomic)
	b.End()
	b.End()
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	dot := v.ExportDOT(g, []string{"root", "parallel", "r1", "r1s1", "r2", "r2s1"})

	if !strings.Contains(dot, `cluster_parallel`) {
		t.Error("Missing parallel cluster")
	}
	if !strings.Contains(dot, `fillcolor=lightblue`) {
		t.Error("Missing parallel style")
	}
}

func TestDefaultVisualizer_ExportJSON(t *testing.T) {
	v := &DefaultVisualizer{}
	b := model.NewBuilder("json-test")
	b.Initial("s1")
	b.Leaf("s1", model.Atomic)
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	data, err := v.ExportJSON(g)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	if !strings.Contains(string(data), `"id": "json-test"`) {
		t.Error("JSON missing expected field")
	}
}

package model

import "testing"

func buildSimple(t *testing.T) *Graph {
	t.Helper()
	b := NewBuilder("root")
	b.Begin("a", Compound).
		Leaf("a1", Atomic).
		Leaf("a2", Atomic).
		Initial("a1").
		End()
	b.Begin("b", Compound).
		Leaf("b1", Atomic).
		Initial("b1").
		End()
	b.Initial("a")

	b.In("a1", func(b *Builder) {
		b.On("go", "", nil, "b")
	})

	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return g
}

func TestBuilderFinalize(t *testing.T) {
	g := buildSimple(t)

	root, err := g.FindState("root")
	if err != nil {
		t.Fatal(err)
	}
	if g.Root != root {
		t.Errorf("expected root index %d, got %d", root, g.Root)
	}

	a, _ := g.FindState("a")
	if g.State(a).Kind != Compound {
		t.Errorf("expected a to be compound")
	}
	a1, _ := g.FindState("a1")
	if g.State(a).Initial != a1 {
		t.Errorf("expected a's initial to resolve to a1")
	}
}

func TestDefaultEntryLeaves(t *testing.T) {
	g := buildSimple(t)
	root, _ := g.FindState("root")
	leaves := g.DefaultEntryLeaves(root)
	if len(leaves) != 1 {
		t.Fatalf("expected 1 default leaf, got %d", len(leaves))
	}
	a1, _ := g.FindState("a1")
	if leaves[0] != a1 {
		t.Errorf("expected default entry leaf a1")
	}
}

func TestLCCA(t *testing.T) {
	g := buildSimple(t)
	a1, _ := g.FindState("a1")
	b1, _ := g.FindState("b1")
	root, _ := g.FindState("root")

	lcca := g.LCCA(a1, []StateIndex{b1})
	if lcca != root {
		t.Errorf("expected LCCA(a1, b1) == root, got %d want %d", lcca, root)
	}
}

func TestMatchesEventPattern(t *testing.T) {
	tests := []struct {
		pattern, event string
		want           bool
	}{
		{"*", "anything", true},
		{"error.*", "error.execution", true},
		{"error.*", "error.communication", true},
		{"done.state.x", "done.state.x", true},
		{"done", "done.state.x", false},
		{"done.state.*", "done.state.x", true},
		{"foo", "bar", false},
	}
	for _, tt := range tests {
		if got := MatchesEventPattern(tt.pattern, tt.event); got != tt.want {
			t.Errorf("MatchesEventPattern(%q, %q) = %v, want %v", tt.pattern, tt.event, got, tt.want)
		}
	}
}

func TestValidateRejectsBadParallel(t *testing.T) {
	b := NewBuilder("root")
	b.Begin("p", Parallel).
		Leaf("atomicChild", Atomic). // invalid: parallel region must be compound/parallel
		End()
	b.Initial("p")

	if _, err := b.Finalize(); err == nil {
		t.Error("expected validation error for parallel region that is not compound/parallel")
	}
}

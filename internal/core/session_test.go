package core

import (
	"context"
	"testing"

	"github.com/comalice/scxmlrt/internal/action"
	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/queue"
	"github.com/comalice/scxmlrt/internal/value"
)

// fakeHost is a minimal stand-in for scripthost.Session: expressions
// are either a literal "true"/"false", a variable lookup, or (for
// TestGuardEvaluationErrorRaisesErrorExecution) the sentinel "boom",
// which always fails to evaluate.
type fakeHost struct {
	vars map[string]value.Value
}

func newFakeHost() *fakeHost { return &fakeHost{vars: map[string]value.Value{}} }

func (f *fakeHost) ExecuteScript(source string) (value.Value, error) { return value.Undef, nil }

func (f *fakeHost) EvaluateExpression(source string) (value.Value, error) {
	switch source {
	case "true":
		return value.FromBool(true), nil
	case "false":
		return value.FromBool(false), nil
	case "boom":
		return value.Undef, errBoom
	}
	if v, ok := f.vars[source]; ok {
		return v, nil
	}
	return value.FromString(source), nil
}

func (f *fakeHost) SetVariable(name string, v value.Value) error {
	f.vars[name] = v
	return nil
}

func (f *fakeHost) SetCurrentEvent(name, kind, sendID, origin, originType, invokeID string, data value.Value) error {
	f.vars["_event.name"] = value.FromString(name)
	return nil
}

func (f *fakeHost) SetupSystemVariables(sessionName string, processors []IOProcessorDescriptor) error {
	return nil
}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

var errBoom = boomErr{}

func newTestSession(t *testing.T, g *model.Graph, host *fakeHost) *Session {
	t.Helper()
	q := queue.NewSession(16)
	env := &action.Env{Graph: g, Host: host, Raise: q, Context: context.Background()}
	return NewSession("sess", g, host, q, env, nil, nil)
}

func TestSimpleTransition(t *testing.T) {
	b := model.NewBuilder("root")
	b.Begin("a", model.Compound).Leaf("a1", model.Atomic).Initial("a1").End()
	b.Leaf("b", model.Atomic)
	b.Initial("a")
	b.In("a1", func(b *model.Builder) {
		b.On("go", "", nil, "b")
	})
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	host := newFakeHost()
	s := newTestSession(t, g, host)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.queue.PushInternal(queue.Event{Name: "go"})
	progressed, err := s.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !progressed {
		t.Fatal("expected Step to report progress")
	}

	cfg := s.Configuration()
	if !contains(cfg, "b") || contains(cfg, "a1") {
		t.Fatalf("expected configuration to contain b and not a1, got %v", cfg)
	}
}

func TestGuardFalseBlocksTransition(t *testing.T) {
	b := model.NewBuilder("root")
	b.Leaf("a", model.Atomic)
	b.Leaf("b", model.Atomic)
	b.Initial("a")
	b.In("a", func(b *model.Builder) {
		b.On("go", "false", nil, "b")
	})
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	host := newFakeHost()
	s := newTestSession(t, g, host)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.queue.PushInternal(queue.Event{Name: "go"})
	if _, err := s.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	cfg := s.Configuration()
	if !contains(cfg, "a") {
		t.Fatalf("expected to remain in a, got %v", cfg)
	}
}

func TestGuardEvaluationErrorRaisesErrorExecution(t *testing.T) {
	b := model.NewBuilder("root")
	b.Leaf("a", model.Atomic)
	b.Leaf("b", model.Atomic)
	b.Initial("a")
	b.In("a", func(b *model.Builder) {
		b.On("go", "boom", nil, "b")
	})
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	host := newFakeHost()
	s := newTestSession(t, g, host)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.queue.PushInternal(queue.Event{Name: "go"})
	if _, err := s.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	ev, ok := s.queue.Next()
	if !ok || ev.Name != "error.execution" {
		t.Fatalf("expected error.execution on the internal queue, got %+v ok=%v", ev, ok)
	}
}

func TestParallelCompletionRaisesDoneState(t *testing.T) {
	b := model.NewBuilder("root")
	b.Begin("p", model.Parallel)
	b.Begin("r1", model.Compound).Leaf("r1a", model.Atomic).Initial("r1a").Leaf("f1", model.Final).End()
	b.Begin("r2", model.Compound).Leaf("r2a", model.Atomic).Initial("r2a").Leaf("f2", model.Final).End()
	b.End()
	b.Initial("p")
	b.In("r1a", func(b *model.Builder) { b.On("go1", "", nil, "f1") })
	b.In("r2a", func(b *model.Builder) { b.On("go2", "", nil, "f2") })
	b.In("root", func(b *model.Builder) {
		b.On("done.state.p", "", []model.ActionSpec{model.Assign("completed", "1")})
	})
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	host := newFakeHost()
	s := newTestSession(t, g, host)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.queue.PushInternal(queue.Event{Name: "go1"})
	if _, err := s.Step(context.Background()); err != nil {
		t.Fatalf("Step go1: %v", err)
	}
	s.queue.PushInternal(queue.Event{Name: "go2"})
	if _, err := s.Step(context.Background()); err != nil {
		t.Fatalf("Step go2: %v", err)
	}
	if err := s.RunUntilIdle(context.Background()); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}

	if _, ok := host.vars["completed"]; !ok {
		t.Fatal("expected done.state.p to trigger the root-level transition")
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

package action

import (
	"context"
	"testing"

	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/value"
)

// fakeHost is a minimal in-memory variable store standing in for
// scripthost.Session; expressions are treated as variable lookups or
// integer literals, which is all these tests need.
type fakeHost struct {
	vars map[string]value.Value
}

func newFakeHost() *fakeHost { return &fakeHost{vars: map[string]value.Value{}} }

func (f *fakeHost) ExecuteScript(source string) (value.Value, error) {
	f.vars["__script_ran__"] = value.FromString(source)
	return value.Undef, nil
}

func (f *fakeHost) EvaluateExpression(source string) (value.Value, error) {
	if v, ok := f.vars[source]; ok {
		return v, nil
	}
	return value.FromString(source), nil
}

func (f *fakeHost) SetVariable(name string, v value.Value) error {
	f.vars[name] = v
	return nil
}

type fakeRaiser struct {
	raised []string
}

func (f *fakeRaiser) RaiseInternal(eventName string, data value.Value) {
	f.raised = append(f.raised, eventName)
}

func buildGraphWithActions(t *testing.T, actions []model.ActionSpec) (*model.Graph, []model.ActionIndex) {
	t.Helper()
	b := model.NewBuilder("root")
	b.Leaf("child", model.Atomic)
	b.Entry(actions...)
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	root, _ := g.FindState("root")
	return g, g.State(root).OnEntry[0]
}

func TestExecuteBlockAssign(t *testing.T) {
	host := newFakeHost()
	host.vars["1"] = value.FromInt(1)

	g, idxs := buildGraphWithActions(t, []model.ActionSpec{model.Assign("x", "1")})
	env := &Env{Graph: g, Host: host, Context: context.Background()}

	if err := env.ExecuteBlock(idxs); err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if host.vars["x"].ToNumber() != 1 {
		t.Errorf("expected x=1, got %v", host.vars["x"])
	}
}

func TestExecuteBlockStopsOnFailureAndRaisesError(t *testing.T) {
	host := newFakeHost()
	raiser := &fakeRaiser{}

	g, idxs := buildGraphWithActions(t, []model.ActionSpec{
		model.Foreach("notanarray", "item", ""),
		model.Assign("after", "1"),
	})
	env := &Env{Graph: g, Host: host, Raise: raiser, Context: context.Background()}

	if err := env.ExecuteBlock(idxs); err != nil {
		t.Fatalf("ExecuteBlock should not return an error for a failing action: %v", err)
	}
	if _, ok := host.vars["after"]; ok {
		t.Error("expected the block to stop before the second action ran")
	}
	if len(raiser.raised) != 1 || raiser.raised[0] != "error.execution" {
		t.Errorf("expected one error.execution, got %v", raiser.raised)
	}
}

func TestExecuteBlockIfElse(t *testing.T) {
	host := newFakeHost()
	host.vars["false"] = value.FromBool(false)

	g, idxs := buildGraphWithActions(t, []model.ActionSpec{
		model.If(
			model.Branch("false", model.Assign("branch", "wrong")),
			model.Else(model.Assign("branch", "1")),
		),
	})
	env := &Env{Graph: g, Host: host, Context: context.Background()}

	if err := env.ExecuteBlock(idxs); err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if host.vars["branch"].ToNumber() != 1 {
		t.Errorf("expected else branch to run, got %v", host.vars["branch"])
	}
}

func TestExecuteBlockForeach(t *testing.T) {
	host := newFakeHost()
	arr := value.NewArray(value.FromInt(1), value.FromInt(2), value.FromInt(3))
	host.vars["items"] = arr

	g, idxs := buildGraphWithActions(t, []model.ActionSpec{
		model.Assign("sum", "0"),
		model.Foreach("items", "item", "idx", model.Assign("sum", "sum")),
	})
	host.vars["sum"] = value.FromInt(0)

	env := &Env{Graph: g, Host: host, Context: context.Background()}
	if err := env.ExecuteBlock(idxs); err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if _, ok := host.vars["item"]; !ok {
		t.Error("expected item variable to be bound during foreach")
	}
	if host.vars["idx"].ToNumber() != 2 {
		t.Errorf("expected idx to end at 2, got %v", host.vars["idx"])
	}
}

func TestExecuteBlockRaise(t *testing.T) {
	host := newFakeHost()
	raiser := &fakeRaiser{}

	g, idxs := buildGraphWithActions(t, []model.ActionSpec{model.Raise("my.event")})
	env := &Env{Graph: g, Host: host, Raise: raiser, Context: context.Background()}

	if err := env.ExecuteBlock(idxs); err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(raiser.raised) != 1 || raiser.raised[0] != "my.event" {
		t.Errorf("expected my.event raised, got %v", raiser.raised)
	}
}

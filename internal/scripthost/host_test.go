package scripthost

import (
	"testing"

	"github.com/comalice/scxmlrt/internal/value"
)

type recordingSink struct {
	events []string
}

func (r *recordingSink) RaiseError(eventName string, data value.Value) {
	r.events = append(r.events, eventName)
}

func TestExecuteScriptAndEvaluateExpression(t *testing.T) {
	h := NewHost(nil)
	sink := &recordingSink{}
	s := h.CreateSession("s1", "", sink)

	if _, err := s.ExecuteScript("var x = 40;"); err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	v, err := s.EvaluateExpression("x + 2")
	if err != nil {
		t.Fatalf("EvaluateExpression: %v", err)
	}
	if v.ToNumber() != 42 {
		t.Errorf("expected 42, got %v", v.ToNumber())
	}
}

func TestEvaluateExpressionWrapsObjectLiteral(t *testing.T) {
	h := NewHost(nil)
	s := h.CreateSession("s1", "", nil)

	v, err := s.EvaluateExpression("{foo: 1}")
	if err != nil {
		t.Fatalf("EvaluateExpression: %v", err)
	}
	if v.Kind() != value.Object {
		t.Fatalf("expected object, got %s", v.Kind())
	}
	got, ok := v.Get("foo")
	if !ok || got.ToNumber() != 1 {
		t.Errorf("expected foo=1, got %v ok=%v", got, ok)
	}
}

func TestSetVariableRejectsSystemVariable(t *testing.T) {
	h := NewHost(nil)
	sink := &recordingSink{}
	s := h.CreateSession("s1", "", sink)

	if err := s.SetVariable("_sessionid", value.FromString("oops")); err == nil {
		t.Fatal("expected error assigning to _sessionid")
	}
	if len(sink.events) != 1 || sink.events[0] != "error.execution" {
		t.Errorf("expected one error.execution, got %v", sink.events)
	}
}

func TestSetupSystemVariables(t *testing.T) {
	h := NewHost(nil)
	s := h.CreateSession("sess-123", "", nil)

	if err := s.SetupSystemVariables("machine", []IOProcessorDescriptor{{Name: "scxml"}}); err != nil {
		t.Fatalf("SetupSystemVariables: %v", err)
	}

	v, err := s.EvaluateExpression("_sessionid")
	if err != nil {
		t.Fatalf("evaluate _sessionid: %v", err)
	}
	if v.ToString() != "sess-123" {
		t.Errorf("expected sess-123, got %q", v.ToString())
	}

	loc, err := s.EvaluateExpression("_ioprocessors.scxml.location")
	if err != nil {
		t.Fatalf("evaluate _ioprocessors: %v", err)
	}
	if loc.ToString() == "" {
		t.Error("expected non-empty ioprocessor location")
	}
}

func TestSetCurrentEventUpdatesAcrossCalls(t *testing.T) {
	h := NewHost(nil)
	s := h.CreateSession("s1", "", nil)

	if err := s.SetCurrentEvent("foo", "internal", "", "", "", "", value.FromString("a")); err != nil {
		t.Fatalf("SetCurrentEvent 1: %v", err)
	}
	v1, err := s.EvaluateExpression("_event.name")
	if err != nil {
		t.Fatalf("eval 1: %v", err)
	}
	if v1.ToString() != "foo" {
		t.Errorf("expected foo, got %q", v1.ToString())
	}

	if err := s.SetCurrentEvent("bar", "internal", "", "", "", "", value.FromString("b")); err != nil {
		t.Fatalf("SetCurrentEvent 2: %v", err)
	}
	v2, err := s.EvaluateExpression("_event.name")
	if err != nil {
		t.Fatalf("eval 2: %v", err)
	}
	if v2.ToString() != "bar" {
		t.Errorf("expected bar after rebind, got %q", v2.ToString())
	}
}

func TestEventDataFromPayloadJSONAndString(t *testing.T) {
	h := NewHost(nil)
	s := h.CreateSession("s1", "", nil)

	v, err := s.EventDataFromPayload(`{"a": 1}`)
	if err != nil {
		t.Fatalf("EventDataFromPayload json: %v", err)
	}
	got, ok := v.Get("a")
	if !ok || got.ToNumber() != 1 {
		t.Errorf("expected a=1, got %v", got)
	}

	v2, err := s.EventDataFromPayload("hello   world")
	if err != nil {
		t.Fatalf("EventDataFromPayload string: %v", err)
	}
	if v2.ToString() != "hello world" {
		t.Errorf("expected normalized string, got %q", v2.ToString())
	}
}

func TestEventDataFromPayloadDOM(t *testing.T) {
	h := NewHost(nil)
	s := h.CreateSession("s1", "", nil)

	v, err := s.EventDataFromPayload(`<root><child attr="1"/></root>`)
	if err != nil {
		t.Fatalf("EventDataFromPayload dom: %v", err)
	}
	if v.Kind() != value.External {
		t.Fatalf("expected external DOM value, got %s", v.Kind())
	}

	if err := s.SetVariable("__data", v); err != nil {
		// _data starting with "_" is not a system variable, so this
		// should succeed; fail loudly if not.
		t.Fatalf("SetVariable: %v", err)
	}
	got, err := s.EvaluateExpression("__data.documentElement.tagName")
	if err != nil {
		t.Fatalf("evaluate tagName: %v", err)
	}
	if got.ToString() != "root" {
		t.Errorf("expected root, got %q", got.ToString())
	}
}

func TestRegisterFunction(t *testing.T) {
	h := NewHost(nil)
	s := h.CreateSession("s1", "", nil)

	err := s.RegisterFunction("double", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Undef, nil
		}
		return value.FromFloat(args[0].ToNumber() * 2), nil
	})
	if err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}

	v, err := s.EvaluateExpression("double(21)")
	if err != nil {
		t.Fatalf("EvaluateExpression: %v", err)
	}
	if v.ToNumber() != 42 {
		t.Errorf("expected 42, got %v", v.ToNumber())
	}
}

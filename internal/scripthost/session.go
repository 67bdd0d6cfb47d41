package scripthost

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dop251/goja"

	"github.com/comalice/scxmlrt/internal/value"
)

// Session is one per-session ECMAScript context.
type Session struct {
	id              string
	parentSessionID string
	vm              *goja.Runtime
	sink            ErrorSink
	logger          *slog.Logger

	eventInstalled bool
	eventBacking   map[string]value.Value

	domSeq int
}

func (s *Session) ID() string { return s.id }

// ExecuteScript evaluates source at global scope (used for top-level
// <script> elements and the `script` executable-content action).
func (s *Session) ExecuteScript(source string) (value.Value, error) {
	v, err := s.vm.RunString(source)
	if err != nil {
		return value.Undef, wrapErr("execute_script", source, err)
	}
	return fromGoja(v), nil
}

// EvaluateExpression evaluates source as an expression. Sources that the
// grammar would otherwise parse as a statement (an object literal, or a
// function/arrow expression at statement position) are wrapped in
// parentheses before they are evaluated.
func (s *Session) EvaluateExpression(source string) (value.Value, error) {
	src := source
	if exprNeedsParens(src) {
		src = "(" + src + ")"
	}
	v, err := s.vm.RunString(src)
	if err != nil {
		return value.Undef, wrapErr("evaluate_expression", source, err)
	}
	return fromGoja(v), nil
}

// SetVariable binds name in global scope. Read-only system variables
// report an error instead of mutating; the caller (internal/action)
// raises error.execution for exactly one violation per attempted
// assignment.
func (s *Session) SetVariable(name string, v value.Value) error {
	if isSystemVariable(name) {
		s.raiseReadOnlyViolation(name)
		return fmt.Errorf("scripthost: %q is a read-only system variable", name)
	}
	if err := s.vm.Set(name, toGoja(s.vm, v)); err != nil {
		return fmt.Errorf("scripthost: set_variable %q: %w", name, err)
	}
	return nil
}

// GetVariable distinguishes "absent" (ok=false) from "bound to
// undefined" (ok=true, Value.IsUndefined()==true).
func (s *Session) GetVariable(name string) (v value.Value, ok bool, err error) {
	got := s.vm.GlobalObject().Get(name)
	if got == nil {
		return value.Undef, false, nil
	}
	return fromGoja(got), true, nil
}

// VariableNames lists every global binding except the lazily-installed
// `_event` and the read-only system variables, for snapshotting.
func (s *Session) VariableNames() []string {
	var out []string
	for _, name := range s.vm.GlobalObject().Keys() {
		if name == "_event" || isSystemVariable(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (s *Session) raiseReadOnlyViolation(name string) {
	if s.sink == nil {
		return
	}
	data := value.NewObject()
	data.Set("variable", value.FromString(name))
	s.sink.RaiseError("error.execution", data)
}

func isSystemVariable(name string) bool {
	switch name {
	case "_event", "_sessionid", "_name", "_ioprocessors":
		return true
	default:
		return false
	}
}

// SetupSystemVariables installs `_sessionid`, `_name`, and `_ioprocessors`
// as read-only globals. `_ioprocessors[k].location` follows
// sce://<k>/<urlencode(session_id)>, per spec.md §4.B.
func (s *Session) SetupSystemVariables(sessionName string, processors []IOProcessorDescriptor) error {
	if err := s.defineReadOnly("_sessionid", value.FromString(s.id)); err != nil {
		return err
	}
	if err := s.defineReadOnly("_name", value.FromString(sessionName)); err != nil {
		return err
	}

	ioObj := value.NewObject()
	for _, p := range processors {
		entry := value.NewObject()
		loc := p.Location
		if loc == "" {
			loc = fmt.Sprintf("sce://%s/%s", p.Name, url.QueryEscape(s.id))
		}
		entry.Set("location", value.FromString(loc))
		ioObj.Set(p.Name, entry)
	}
	return s.defineReadOnly("_ioprocessors", ioObj)
}

// defineReadOnly installs a global whose assignment is rejected at the Go
// API boundary (SetVariable) and, defense in depth, at the goja property
// level via a non-writable data property so a raw `<script>` assignment
// in sloppy mode is silently dropped rather than corrupting state.
func (s *Session) defineReadOnly(name string, v value.Value) error {
	if err := s.vm.GlobalObject().DefineDataProperty(name, toGoja(s.vm, v), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return fmt.Errorf("scripthost: define read-only %q: %w", name, err)
	}
	return nil
}

// SetCurrentEvent installs (on first call) or updates (thereafter) the
// `_event` binding. Before the first event, `_event` must not exist in
// global scope (spec.md §4.B.1); EventDataFromPayload (eventdata.go)
// implements the `_event.data` parsing rules.
func (s *Session) SetCurrentEvent(name, kind, sendID, origin, originType, invokeID string, data value.Value) error {
	obj := value.NewObject()
	obj.Set("name", value.FromString(name))
	obj.Set("type", value.FromString(kind))
	obj.Set("sendid", value.FromString(sendID))
	obj.Set("origin", value.FromString(origin))
	obj.Set("origintype", value.FromString(originType))
	obj.Set("invokeid", value.FromString(invokeID))
	obj.Set("data", data)

	// _event is redefined (not Set) on every call: it is installed
	// non-writable so a script-level `_event = ...` is rejected, but
	// remains configurable so the interpreter itself can rebind the
	// backing object ahead of each microstep.
	if err := s.vm.GlobalObject().DefineDataProperty("_event", toGoja(s.vm, obj), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return fmt.Errorf("scripthost: bind _event: %w", err)
	}
	s.eventInstalled = true
	return nil
}

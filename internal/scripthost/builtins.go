package scripthost

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/comalice/scxmlrt/internal/value"
)

// NativeFunction is a host function made callable from script. It receives
// already-converted value.Value arguments and returns a value.Value (or an
// error, surfaced to the caller as a thrown ECMAScript exception).
//
// This replaces the C++ template-based ClassBinder<T> pattern (spec.md
// §9's redesign note): rather than generating per-type bindings at compile
// time, the host registers a flat name→function table at session setup.
type NativeFunction func(args []value.Value) (value.Value, error)

// installBuiltins wires the function/object registration surface into a
// freshly created runtime. Individual native functions are added with
// RegisterFunction once the embedder (internal/core) knows what platform
// capabilities this session should expose (e.g. an In(stateID) predicate
// for the boolean expression language, once the interpreter is attached).
func installBuiltins(s *Session) {
	s.vm.Set("registered_functions", s.vm.NewObject())
}

// RegisterFunction exposes fn as a callable global named name. Arguments
// are converted from goja values before fn runs and the result converted
// back; an error return becomes a thrown ECMAScript exception via goja's
// panic-unwind convention.
func (s *Session) RegisterFunction(name string, fn NativeFunction) error {
	wrapped := func(call goja.FunctionCall) goja.Value {
		args := make([]value.Value, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = fromGoja(a)
		}
		result, err := fn(args)
		if err != nil {
			panic(s.vm.NewGoError(fmt.Errorf("%s: %w", name, err)))
		}
		return toGoja(s.vm, result)
	}
	return s.vm.Set(name, wrapped)
}

// RegisterObject exposes a flat map of name→value as a single global
// object, used for read-only platform namespaces that group related
// constants or accessors (e.g. a future `Math`-like helper namespace)
// without polluting the global scope with one binding per entry.
func (s *Session) RegisterObject(name string, members map[string]value.Value) error {
	obj := s.vm.NewObject()
	for k, v := range members {
		if err := obj.Set(k, toGoja(s.vm, v)); err != nil {
			return fmt.Errorf("scripthost: register_object %s.%s: %w", name, k, err)
		}
	}
	return s.vm.Set(name, obj)
}

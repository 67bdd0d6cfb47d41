// Package value implements the dynamic Value sum type exchanged between the
// interpreter and the ECMAScript data model: undefined, null, bool, int64,
// float64, string, array, object, and external (an opaque host-side handle,
// used for DOM content that must keep living object semantics inside the
// script host rather than collapse into a JSON tree).
//
// Value is a small flat struct so that scalars never allocate; array and
// object variants share a heap payload through a pointer so copies stay
// cheap while structural mutation is visible to every holder, matching
// how the script host's own object graph behaves.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind discriminates the Value variant.
type Kind uint8

const (
	Undefined Kind = iota
	Null
	Bool
	Int
	Float
	String
	Array
	Object
	External
)

func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Int:
		return "int"
	case Float:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// heap is the shared payload backing Array and Object values.
// Cycles are permitted only inside the script host's own heap; a Value
// crossing the session boundary is always produced fresh from JSON or DOM
// text, so cycles never appear here.
type heap struct {
	arr []Value
	obj map[string]Value
	// keys preserves insertion order for deterministic JSON/string output.
	keys []string
}

// Value is the tagged union exchanged with the script host.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	h    *heap
	ext  interface{}
}

// Undef is the canonical undefined value.
var Undef = Value{kind: Undefined}

// Nil is the canonical null value.
var Nil = Value{kind: Null}

func FromBool(b bool) Value     { return Value{kind: Bool, b: b} }
func FromInt(i int64) Value     { return Value{kind: Int, i: i} }
func FromFloat(f float64) Value { return Value{kind: Float, f: f} }
func FromString(s string) Value { return Value{kind: String, s: s} }

// NewArray constructs an Array value from a slice of elements, copying the
// slice so later caller mutation of elems does not alias the Value.
func NewArray(elems ...Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: Array, h: &heap{arr: cp}}
}

// NewObject constructs an empty Object value.
func NewObject() Value {
	return Value{kind: Object, h: &heap{obj: map[string]Value{}}}
}

// FromExternal wraps an opaque, host-defined payload (a parsed DOM document,
// for instance) that the interpreter passes through without interpreting.
func FromExternal(x interface{}) Value { return Value{kind: External, ext: x} }

// External returns the wrapped payload, or nil if v is not an External value.
func (v Value) External() interface{} {
	if v.kind != External {
		return nil
	}
	return v.ext
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == Undefined }
func (v Value) IsNull() bool      { return v.kind == Null }

// Set assigns a property on an Object value. Panics if v is not an Object —
// callers must construct with NewObject first; this mirrors how the script
// host's own object model behaves (assigning through an unconfigured
// binding is a programming error, not a runtime condition).
func (v Value) Set(key string, val Value) {
	if v.kind != Object {
		panic("value: Set called on non-object Value")
	}
	if _, exists := v.h.obj[key]; !exists {
		v.h.keys = append(v.h.keys, key)
	}
	v.h.obj[key] = val
}

// Get looks up an Object property. Returns (Undef, false) when absent —
// callers distinguishing "absent" from "bound to undefined" should check
// the second return.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object || v.h == nil {
		return Undef, false
	}
	val, ok := v.h.obj[key]
	return val, ok
}

// Keys returns Object property names in insertion order.
func (v Value) Keys() []string {
	if v.kind != Object || v.h == nil {
		return nil
	}
	out := make([]string, len(v.h.keys))
	copy(out, v.h.keys)
	return out
}

// Append appends an element to an Array value.
func (v Value) Append(elem Value) {
	if v.kind != Array {
		panic("value: Append called on non-array Value")
	}
	v.h.arr = append(v.h.arr, elem)
}

// Len returns the element/property count for Array/Object, 0 otherwise.
func (v Value) Len() int {
	if v.h == nil {
		return 0
	}
	if v.kind == Array {
		return len(v.h.arr)
	}
	return len(v.h.keys)
}

// Index returns the i'th array element, or Undef if out of range.
func (v Value) Index(i int) Value {
	if v.kind != Array || v.h == nil || i < 0 || i >= len(v.h.arr) {
		return Undef
	}
	return v.h.arr[i]
}

// Elements returns a defensive copy of the array's backing slice.
func (v Value) Elements() []Value {
	if v.kind != Array || v.h == nil {
		return nil
	}
	out := make([]Value, len(v.h.arr))
	copy(out, v.h.arr)
	return out
}

// ToBool follows ECMAScript truthiness coercion.
func (v Value) ToBool() bool {
	switch v.kind {
	case Undefined, Null:
		return false
	case Bool:
		return v.b
	case Int:
		return v.i != 0
	case Float:
		return v.f != 0 && !math.IsNaN(v.f)
	case String:
		return v.s != ""
	case Array, Object:
		return true
	case External:
		return v.ext != nil
	default:
		return false
	}
}

// ToNumber follows ECMAScript ToNumber coercion for the variants this
// interpreter exchanges across the host boundary (strings parse leniently;
// unparsable strings yield NaN, signalled here as math.NaN()).
func (v Value) ToNumber() float64 {
	switch v.kind {
	case Undefined:
		return math.NaN()
	case Null:
		return 0
	case Bool:
		if v.b {
			return 1
		}
		return 0
	case Int:
		return float64(v.i)
	case Float:
		return v.f
	case String:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return 0
		}
		var f float64
		if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// ToString follows ECMAScript ToString coercion.
func (v Value) ToString() string {
	switch v.kind {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Int:
		return fmt.Sprintf("%d", v.i)
	case Float:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v.f), "0"), ".")
	case String:
		return v.s
	case Array:
		parts := make([]string, len(v.h.arr))
		for i, e := range v.h.arr {
			parts[i] = e.ToString()
		}
		return strings.Join(parts, ",")
	case Object:
		return "[object Object]"
	case External:
		return fmt.Sprintf("%v", v.ext)
	default:
		return ""
	}
}

// Equal performs deep structural equality, used by tests; identity
// equality is intentionally not exposed.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Undefined, Null:
		return true
	case Bool:
		return a.b == b.b
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case String:
		return a.s == b.s
	case Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !Equal(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case Object:
		ak, bk := a.Keys(), b.Keys()
		if len(ak) != len(bk) {
			return false
		}
		sort.Strings(ak)
		sort.Strings(bk)
		for i := range ak {
			if ak[i] != bk[i] {
				return false
			}
			av, _ := a.Get(ak[i])
			bv, _ := b.Get(bk[i])
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	case External:
		return a.ext == b.ext
	default:
		return false
	}
}

// FromJSON deserializes JSON bytes into a Value tree.
func FromJSON(data []byte) (Value, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Undef, fmt.Errorf("value: decode json: %w", err)
	}
	return fromAny(raw), nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Nil
	case bool:
		return FromBool(t)
	case string:
		return FromString(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return FromInt(i)
		}
		f, _ := t.Float64()
		return FromFloat(f)
	case []any:
		arr := NewArray()
		for _, e := range t {
			arr.Append(fromAny(e))
		}
		return arr
	case map[string]any:
		obj := NewObject()
		for k, e := range t {
			obj.Set(k, fromAny(e))
		}
		return obj
	default:
		return Undef
	}
}

// ToJSON serializes a Value tree to JSON bytes. Undefined serializes as
// JSON null since JSON has no undefined literal.
func ToJSON(v Value) ([]byte, error) {
	return json.Marshal(toAny(v))
}

func toAny(v Value) any {
	switch v.kind {
	case Undefined, Null:
		return nil
	case Bool:
		return v.b
	case Int:
		return v.i
	case Float:
		return v.f
	case String:
		return v.s
	case Array:
		out := make([]any, v.Len())
		for i, e := range v.Elements() {
			out[i] = toAny(e)
		}
		return out
	case Object:
		out := map[string]any{}
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			out[k] = toAny(val)
		}
		return out
	case External:
		// An external handle (e.g. a parsed DOM document) has no JSON
		// form; snapshots persist it as null and it is reconstructed,
		// if needed, from the content that produced it.
		return nil
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler so Value can nest inside snapshot
// structs persisted by internal/production.
func (v Value) MarshalJSON() ([]byte, error) { return ToJSON(v) }

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

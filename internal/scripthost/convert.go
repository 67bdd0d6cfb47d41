package scripthost

import (
	"github.com/dop251/goja"

	"github.com/comalice/scxmlrt/internal/value"
)

// toGoja converts a value.Value into a goja.Value bound to vm.
func toGoja(vm *goja.Runtime, v value.Value) goja.Value {
	switch v.Kind() {
	case value.Undefined:
		return goja.Undefined()
	case value.Null:
		return goja.Null()
	case value.Bool:
		return vm.ToValue(v.ToBool())
	case value.Int:
		return vm.ToValue(v.ToNumber())
	case value.Float:
		return vm.ToValue(v.ToNumber())
	case value.String:
		return vm.ToValue(v.ToString())
	case value.Array:
		elems := v.Elements()
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			out[i] = toGoja(vm, e)
		}
		return vm.ToValue(out)
	case value.Object:
		obj := vm.NewObject()
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			obj.Set(k, toGoja(vm, val))
		}
		return obj
	case value.External:
		if gv, ok := v.External().(goja.Value); ok {
			return gv
		}
		return vm.ToValue(v.External())
	default:
		return goja.Undefined()
	}
}

// fromGoja converts a goja.Value back into a value.Value.
func fromGoja(v goja.Value) value.Value {
	if v == nil || goja.IsUndefined(v) {
		return value.Undef
	}
	if goja.IsNull(v) {
		return value.Nil
	}
	exported := v.Export()
	return fromExported(exported)
}

func fromExported(exported interface{}) value.Value {
	switch t := exported.(type) {
	case nil:
		return value.Nil
	case bool:
		return value.FromBool(t)
	case int64:
		return value.FromInt(t)
	case int:
		return value.FromInt(int64(t))
	case float64:
		return value.FromFloat(t)
	case string:
		return value.FromString(t)
	case []interface{}:
		arr := value.NewArray()
		for _, e := range t {
			arr.Append(fromExported(e))
		}
		return arr
	case map[string]interface{}:
		obj := value.NewObject()
		for k, e := range t {
			obj.Set(k, fromExported(e))
		}
		return obj
	default:
		return value.Undef
	}
}

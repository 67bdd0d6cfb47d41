package scripthost

import (
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/dop251/goja"
)

// ParseXML decodes src into a DOM Document usable by SetVariableAsDOM and
// by the `_event.data` parsing rule for event payloads that begin with
// `<` (spec.md §4.B.4).
func ParseXML(src string) (xmldom.Document, error) {
	dec := xmldom.NewDecoder(strings.NewReader(src))
	return dec.Decode()
}

// SetVariableAsDOM binds name to a thin wrapper object exposing a
// getElementsByTagName/getAttribute surface over doc, the minimal subset
// of the DOM API that <content>/<param> expressions and E4X-less scripts
// need to read parsed XML content (spec.md §4.B.3). The wrapper is a
// fresh goja object per call: it does not attempt to back a live,
// two-way DOM binding.
func (s *Session) SetVariableAsDOM(name string, doc xmldom.Document) error {
	return s.vm.Set(name, wrapDocument(s.vm, doc))
}

func wrapDocument(vm *goja.Runtime, doc xmldom.Document) goja.Value {
	obj := vm.NewObject()
	root := doc.DocumentElement()
	obj.Set("documentElement", wrapElement(vm, root))
	obj.Set("getElementsByTagName", vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if root == nil {
			return vm.ToValue([]interface{}{})
		}
		return vm.ToValue(wrapNodeList(vm, root.GetElementsByTagName(xmldom.DOMString(call.Argument(0).String()))))
	}))
	return obj
}

func wrapElement(vm *goja.Runtime, el xmldom.Element) goja.Value {
	if el == nil {
		return goja.Null()
	}
	obj := vm.NewObject()
	obj.Set("tagName", string(el.LocalName()))
	obj.Set("textContent", string(el.TextContent()))
	obj.Set("getAttribute", vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(string(el.GetAttribute(xmldom.DOMString(call.Argument(0).String()))))
	}))
	obj.Set("getElementsByTagName", vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(wrapNodeList(vm, el.GetElementsByTagName(xmldom.DOMString(call.Argument(0).String()))))
	}))
	return obj
}

func wrapNodeList(vm *goja.Runtime, list xmldom.NodeList) []interface{} {
	if list == nil {
		return nil
	}
	out := make([]interface{}, 0, list.Length())
	for i := uint(0); i < list.Length(); i++ {
		if el, ok := list.Item(i).(xmldom.Element); ok {
			out = append(out, wrapElement(vm, el))
		}
	}
	return out
}

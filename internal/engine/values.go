package engine

import (
	"fmt"

	"github.com/dop251/goja"
)

const settleScript = `
(function (value, resolve, reject) {
	Promise.resolve(value).then(resolve, reject);
})
`

var settleProgram = goja.MustCompile("settle", settleScript, false)

// RejectionError carries a value a function rejected or passed as the
// first callback argument.
type RejectionError struct {
	Message string
	Value   interface{}
}

func (e *RejectionError) Error() string {
	return e.Message
}

// await delivers v to cb, waiting for it first when it is a thenable.
// Must run on the loop.
func (e *Engine) await(vm *goja.Runtime, v goja.Value, cb func(goja.Value, error)) {
	if !isThenable(v) {
		cb(v, nil)
		return
	}

	settled := false
	finish := func(v goja.Value, err error) {
		if settled {
			return
		}
		settled = true
		cb(v, err)
	}
	resolve := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		finish(call.Argument(0), nil)
		return goja.Undefined()
	})
	reject := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		finish(nil, rejection(call.Argument(0)))
		return goja.Undefined()
	})
	if _, err := e.settle(goja.Undefined(), v, resolve, reject); err != nil {
		finish(nil, err)
	}
}

func isThenable(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	then := obj.Get("then")
	if then == nil {
		return false
	}
	_, ok = goja.AssertFunction(then)
	return ok
}

func arity(v goja.Value) int {
	obj, ok := v.(*goja.Object)
	if !ok {
		return 0
	}
	length := obj.Get("length")
	if length == nil {
		return 0
	}
	return int(length.ToInteger())
}

func rejection(reason goja.Value) error {
	if obj, ok := reason.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return &RejectionError{Message: reason.String(), Value: reason.Export()}
		}
	}
	exported := Export(reason)
	return &RejectionError{Message: fmt.Sprintf("%v", exported), Value: exported}
}

func describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	return v.ExportType().String()
}

// Export converts a goja.Value into a plain Go value. nil, undefined and
// null become nil. Numbers come back as int64 when integral and float64
// otherwise.
//
// Example:
//
//	val, _ := vm.RunString("({name: 'John', age: 30})")
//	obj := engine.Export(val).(map[string]interface{})
func Export(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

package engine

import (
	"github.com/dop251/goja"
)

// Function is a compiled JavaScript function bound to its Engine.
//
// Functions declaring two or more parameters follow the callback
// convention fn(input, callback) with callback(err, result). Functions
// declaring fewer return their result, which may be a promise.
type Function struct {
	engine *Engine
	fn     goja.Callable
	arity  int
}

// Call invokes the function with input on the loop. done is called exactly
// once on the loop goroutine, unless the engine stops first.
func (f *Function) Call(input interface{}, done func(interface{}, error)) {
	if f.engine.closed.Load() {
		done(nil, ErrClosed)
		return
	}
	f.engine.loop.RunOnLoop(func(vm *goja.Runtime) {
		settled := false
		finish := func(v goja.Value, err error) {
			if settled {
				return
			}
			settled = true
			if err != nil {
				done(nil, err)
				return
			}
			done(Export(v), nil)
		}

		args := []goja.Value{vm.ToValue(input)}
		if f.arity >= 2 {
			args = append(args, vm.ToValue(func(call goja.FunctionCall) goja.Value {
				if reason := call.Argument(0); reason.ToBoolean() {
					finish(nil, rejection(reason))
				} else {
					finish(call.Argument(1), nil)
				}
				return goja.Undefined()
			}))
		}

		ret, err := f.fn(goja.Undefined(), args...)
		if err != nil {
			finish(nil, err)
			return
		}
		if f.arity < 2 || isThenable(ret) {
			f.engine.await(vm, ret, finish)
		}
	})
}

// Arity is the number of parameters the function declares.
func (f *Function) Arity() int {
	return f.arity
}

package edge

import (
	"context"

	"github.com/google/uuid"
)

// Function is a compiled function living in the runtime. It is safe to
// invoke from any number of goroutines; the runtime executes one call
// body at a time, in no guaranteed order across goroutines.
type Function struct {
	id       uuid.UUID
	bridge   *Bridge
	callable Callable
}

// ID identifies the function in logs.
func (f *Function) ID() string {
	return f.id.String()
}

// Invoke calls the function with input and blocks until it completes.
// input and the result are passed through opaquely, except that the goja
// runtime hands numbers back in its own representation: integral values
// come back as int64 and other numbers as float64, whatever Go type went
// in. Strings, bools, maps and slices round-trip unchanged.
//
// Errors are *CallError values whose Kind is ErrExecutionFailed or
// ErrClosed.
func (f *Function) Invoke(input interface{}) (interface{}, error) {
	return f.InvokeContext(context.Background(), input)
}

// InvokeContext is Invoke that stops waiting when ctx ends, returning
// ctx.Err(). The call itself is not cancelled.
func (f *Function) InvokeContext(ctx context.Context, input interface{}) (interface{}, error) {
	t, _, err := f.bridge.track()
	if err != nil {
		return nil, newCallError(err)
	}
	f.callable.Call(input, func(v interface{}, err error) {
		t.complete(v, err)
	})

	v, err := f.bridge.wait(ctx, t)
	if err != nil {
		if isContextErr(ctx, err) {
			return nil, err
		}
		return nil, newCallError(err)
	}
	return v, nil
}

// Package edge bridges Go and an embedded JavaScript runtime. It starts
// the runtime once per process on a dedicated thread, compiles source
// strings into function handles and lets any goroutine invoke them.
//
// The package is designed for scenarios where you need to:
//   - Call into JavaScript from many goroutines without sharing a VM
//   - Compile a function once and invoke it repeatedly
//   - Keep blocking, synchronous-looking call semantics on the Go side
//   - Swap the embedded runtime (built-in goja, or a native plugin)
//
// Basic usage:
//
//	fn, err := edge.Func(`
//	    return function (data, callback) {
//	        callback(null, 'Hello, ' + data);
//	    };
//	`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	greeting, err := fn.Invoke("world") // "Hello, world"
//
// Functions may also return a value or a promise instead of using a
// callback:
//
//	fn, _ := edge.Func(`return async function (x) { return x * 2; }`)
//
// The runtime is configured from the environment (EDGE_BASE_DIR,
// EDGE_NODE_PARAMS, EDGE_NATIVE_PATH, EDGE_BOOTSTRAP) the first time it is
// needed.
package edge

import "sync"

var (
	defaultOnce   sync.Once
	defaultBridge *Bridge
)

// Default returns the process-wide Bridge, creating it on first use with
// the environment configuration.
func Default() *Bridge {
	defaultOnce.Do(func() {
		defaultBridge = New()
	})
	return defaultBridge
}

// Func compiles source with the default Bridge.
func Func(source string, opts ...CompileOption) (*Function, error) {
	return Default().Compile(source, opts...)
}

// Close shuts down the default Bridge. Func fails with ErrRuntimeClosed
// afterwards.
func Close() error {
	return Default().Close()
}

// Package engine runs the goja JavaScript runtime on a goja_nodejs event
// loop and exposes the compile/call contract the edge bridge consumes.
//
// The loop goroutine is the only goroutine that touches the goja.Runtime.
// Every request from other goroutines is handed over with RunOnLoop, and
// results travel back through completion callbacks.
//
// Basic usage:
//
//	code := engine.Start([]string{"node", "bootstrap.js"}, engine.Options{},
//	    func(e *engine.Engine) error {
//	        e.Compile(`return function (x) { return x * 2; }`, onCompiled)
//	        return nil
//	    })
package engine

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
)

// Exit codes returned by Start.
const (
	ExitOK              = 0
	ExitBootstrapFailed = 1
	ExitInvalidArgs     = 9
)

// HostObject is the global through which the bootstrap script reaches the host.
const HostObject = "__edge"

//go:embed bootstrap.js
var defaultBootstrap string

var (
	// ErrClosed is reported for work submitted after the loop stopped.
	ErrClosed = errors.New("engine: runtime closed")

	errNotInitialized = errors.New("engine: bootstrap script did not call " + HostObject + ".initialize")
)

// Options configures an Engine.
type Options struct {
	// Logger receives console output and lifecycle messages.
	Logger *zap.Logger

	// Globals are installed in the global scope before the bootstrap
	// script runs.
	Globals map[string]interface{}
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Engine is a running JavaScript runtime. All exported methods are safe
// for concurrent use.
type Engine struct {
	loop   *eventloop.EventLoop
	log    *zap.Logger
	params Params
	closed atomic.Bool

	// touched only on the loop
	compile goja.Callable
	settle  goja.Callable
}

// Start parses argv, boots the runtime and runs its event loop on the
// calling goroutine until the engine is closed. initialize is called from
// inside the bootstrap script once it registers its compile function; an
// error from it aborts the bootstrap.
//
// argv is laid out as program name, parameters, bootstrap script path.
func Start(argv []string, opts Options, initialize func(*Engine) error) int {
	log := opts.logger()

	params, script, err := ParseArgv(argv)
	if err != nil {
		log.Error("invalid runtime arguments", zap.Strings("argv", argv), zap.Error(err))
		return ExitInvalidArgs
	}
	for _, p := range params.Unknown {
		log.Warn("ignoring unknown runtime parameter", zap.String("param", p))
	}

	dir := filepath.Dir(script)
	registry := require.NewRegistry(
		require.WithGlobalFolders(dir, filepath.Join(dir, "node_modules")),
	)
	loop := eventloop.NewEventLoop(eventloop.WithRegistry(registry))

	e := &Engine{loop: loop, log: log, params: params}
	code := ExitOK
	loop.RunOnLoop(func(vm *goja.Runtime) {
		if err := e.boot(vm, script, opts.Globals, initialize); err != nil {
			log.Error("runtime bootstrap failed", zap.String("script", script), zap.Error(err))
			code = ExitBootstrapFailed
			loop.StopNoWait()
		}
	})

	loop.StartInForeground()
	e.closed.Store(true)
	log.Debug("runtime loop exited", zap.Int("code", code))
	return code
}

func (e *Engine) boot(vm *goja.Runtime, script string, globals map[string]interface{}, initialize func(*Engine) error) error {
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if e.params.StackSize > 0 {
		vm.SetMaxCallStackSize(e.params.StackSize)
	}

	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return fmt.Errorf("failed to set global %s: %w", name, err)
		}
	}
	if err := installConsole(vm, e.log); err != nil {
		return err
	}

	settle, err := vm.RunProgram(settleProgram)
	if err != nil {
		return fmt.Errorf("failed to install promise settler: %w", err)
	}
	e.settle, _ = goja.AssertFunction(settle)

	host := vm.NewObject()
	if err := host.Set("strict", e.params.Strict); err != nil {
		return err
	}
	err = host.Set("initialize", func(call goja.FunctionCall) goja.Value {
		if e.compile != nil {
			panic(vm.NewTypeError("runtime already initialized"))
		}
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("initialize expects a compile function"))
		}
		e.compile = fn
		if err := initialize(e); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
	if err != nil {
		return err
	}
	if err := vm.Set(HostObject, host); err != nil {
		return err
	}

	source, err := readBootstrap(script)
	if err != nil {
		return err
	}
	if source == defaultBootstrap {
		e.log.Debug("bootstrap script not found, using built-in bootstrap", zap.String("script", script))
	}

	program, err := goja.Compile(script, source, e.params.Strict)
	if err != nil {
		return fmt.Errorf("failed to compile bootstrap script: %w", err)
	}
	if _, err := vm.RunProgram(program); err != nil {
		return fmt.Errorf("failed to execute bootstrap script: %w", err)
	}
	if e.compile == nil {
		return errNotInitialized
	}
	return nil
}

func readBootstrap(path string) (string, error) {
	code, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultBootstrap, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read bootstrap script: %w", err)
	}
	return string(code), nil
}

// Close stops the event loop. Work already queued is dropped; callers
// waiting on it must be released by whoever tracks them.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.loop.StopNoWait()
}

// Closed reports whether the loop has stopped or is stopping.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// Compile runs the registered compile function with source on the loop.
// done receives the compiled function or the compilation error. done is
// called on the loop goroutine and must not block.
func (e *Engine) Compile(source string, done func(*Function, error)) {
	if e.closed.Load() {
		done(nil, ErrClosed)
		return
	}
	e.loop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := e.compile(goja.Undefined(), vm.ToValue(source))
		if err != nil {
			done(nil, err)
			return
		}
		e.await(vm, v, func(v goja.Value, err error) {
			if err != nil {
				done(nil, err)
				return
			}
			fn, ok := goja.AssertFunction(v)
			if !ok {
				done(nil, fmt.Errorf("source must return a function, got %s", describe(v)))
				return
			}
			done(&Function{engine: e, fn: fn, arity: arity(v)}, nil)
		})
	})
}

package edge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/boomhut/goja-edge/internal/transpile"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of the runtime behind a Bridge.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Bridge owns the embedded runtime: it bootstraps it on first use, hands
// source to its compile entry point and tracks every pending call so a
// runtime shutdown never leaves a caller waiting.
//
// A process is expected to use a single Bridge, normally Default().
type Bridge struct {
	cfg    Config
	loader Loader
	log    *zap.Logger

	startMu sync.Mutex
	started atomic.Bool
	gate    *Gate

	mu      sync.Mutex
	state   State
	rt      Runtime
	pending map[uuid.UUID]*task
}

// New creates a Bridge. The runtime is not started until the first Compile.
//
// Example:
//
//	b := edge.New(edge.WithLogger(logger))
//	defer b.Close()
//	fn, err := b.Compile(`return function (data, callback) { callback(null, data + 1); }`)
func New(opts ...Option) *Bridge {
	b := &Bridge{
		cfg:     DefaultConfig(),
		loader:  &GojaLoader{},
		log:     zap.NewNop(),
		gate:    NewGate(),
		pending: make(map[uuid.UUID]*task),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State reports the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready returns a channel closed once the runtime reached a terminal
// initialization outcome.
func (b *Bridge) Ready() <-chan struct{} {
	return b.gate.Done()
}

// Start bootstraps the runtime if needed and waits for it to be ready.
// Compile calls it implicitly.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.Load() {
		b.startOnce()
	}
	return b.gate.WaitContext(ctx)
}

func (b *Bridge) startOnce() {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started.Load() {
		return
	}
	b.started.Store(true)
	b.bootstrap()
}

// Compile turns source into a Function, starting the runtime on first
// use. It blocks until the runtime has compiled the source.
//
// For the goja runtime, source is a function body that returns a
// function:
//
//	fn, err := b.Compile(`
//	    return function (data, callback) {
//	        callback(null, 'Hello, ' + data);
//	    };
//	`)
//
// Errors are *CompileError values whose Kind is ErrRuntimeInitFailed,
// ErrRuntimeClosed or ErrCompilationFailed.
func (b *Bridge) Compile(source string, opts ...CompileOption) (*Function, error) {
	return b.CompileContext(context.Background(), source, opts...)
}

// CompileContext is Compile that stops waiting when ctx ends, returning
// ctx.Err(). The runtime still finishes the compilation.
func (b *Bridge) CompileContext(ctx context.Context, source string, opts ...CompileOption) (*Function, error) {
	if err := b.Start(ctx); err != nil {
		if isContextErr(ctx, err) {
			return nil, err
		}
		return nil, newCompileError(err)
	}

	var co compileOptions
	for _, opt := range opts {
		opt(&co)
	}
	if co.syntax != transpile.JavaScript {
		body, err := transpile.Body(source, co.syntax)
		if err != nil {
			return nil, &CompileError{Kind: ErrCompilationFailed, Message: err.Error(), Err: err}
		}
		source = body
	}

	t, rt, err := b.track()
	if err != nil {
		return nil, newCompileError(err)
	}
	rt.Compile(source, func(c Callable, err error) {
		if err == nil && c == nil {
			err = errors.New("runtime returned no function")
		}
		t.complete(c, err)
	})

	v, err := b.wait(ctx, t)
	if err != nil {
		if isContextErr(ctx, err) {
			return nil, err
		}
		b.log.Debug("compilation failed", zap.Error(err))
		return nil, newCompileError(err)
	}

	fn := &Function{id: uuid.New(), bridge: b, callable: v.(Callable)}
	b.log.Debug("compiled function", zap.Stringer("function", fn.id))
	return fn, nil
}

// Close shuts the runtime down. Pending compilations and invocations fail
// with ErrClosed, as does everything submitted afterwards. The runtime
// cannot be started again.
func (b *Bridge) Close() error {
	b.shutdown("closed by host")
	return nil
}

// shutdown moves the bridge to StateClosed and releases every waiter.
func (b *Bridge) shutdown(reason string) {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	prev := b.state
	rt := b.rt
	pending := b.pending
	b.state = StateClosed
	b.rt = nil
	b.pending = make(map[uuid.UUID]*task)
	b.mu.Unlock()

	b.gate.Fail(ErrClosed)
	for _, t := range pending {
		t.complete(nil, ErrClosed)
	}
	if rt != nil {
		rt.Close()
	}
	b.log.Info("runtime closed",
		zap.String("reason", reason),
		zap.Stringer("previous", prev),
		zap.Int("pending", len(pending)))
}

// track registers a new task against the ready runtime.
func (b *Bridge) track() (*task, Runtime, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateReady || b.rt == nil {
		return nil, nil, ErrClosed
	}
	t := newTask()
	b.pending[t.id] = t
	return t, b.rt, nil
}

func (b *Bridge) untrack(t *task) {
	b.mu.Lock()
	delete(b.pending, t.id)
	b.mu.Unlock()
}

// wait blocks until t completes or ctx ends.
func (b *Bridge) wait(ctx context.Context, t *task) (interface{}, error) {
	defer b.untrack(t)
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func isContextErr(ctx context.Context, err error) bool {
	ctxErr := ctx.Err()
	return ctxErr != nil && errors.Is(err, ctxErr)
}

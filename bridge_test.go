package edge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCompileBootstrapsOnce(t *testing.T) {
	loader := &fakeLoader{delay: 50 * time.Millisecond}
	b := newFakeBridge(loader)
	defer b.Close()

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := b.Compile("identity")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), loader.loads.Load())
	assert.Equal(t, int32(1), loader.starts.Load())
	assert.Equal(t, StateReady, b.State())
}

func TestBootstrapArgv(t *testing.T) {
	loader := &fakeLoader{}
	b := New(WithConfig(Config{BaseDir: "/opt/app", Params: " --stack-size=64   --use-strict "}), WithLoader(loader))
	defer b.Close()

	_, err := b.Compile("identity")
	require.NoError(t, err)

	loader.mu.Lock()
	defer loader.mu.Unlock()
	assert.Equal(t, []string{"node", "--stack-size=64", "--use-strict", "/opt/app/edge/double_edge.js"}, loader.argv)
}

func TestLoadFailureIsFinal(t *testing.T) {
	loader := &fakeLoader{err: &LoadError{Kind: ErrLibraryNotFound, Path: "/opt/app/edge/x64/node.so"}}
	b := newFakeBridge(loader)

	for i := 0; i < 3; i++ {
		_, err := b.Compile("identity")
		require.Error(t, err)

		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrRuntimeInitFailed, ce.Kind)
		assert.ErrorIs(t, err, ErrLibraryNotFound)

		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "/opt/app/edge/x64/node.so", le.Path)
	}
	assert.Equal(t, int32(1), loader.loads.Load())
	assert.Equal(t, StateFailed, b.State())
}

func TestEntryPointExitsBeforeInit(t *testing.T) {
	loader := &fakeLoader{entry: func(argv []string, host Host) int {
		time.Sleep(20 * time.Millisecond)
		return 3
	}}
	b := newFakeBridge(loader)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := b.Compile("identity")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, ErrRuntimeInitFailed)
		assert.ErrorIs(t, err, ErrExitedBeforeInit)

		var ie *InitError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, 3, ie.ExitCode)
	}
	assert.Equal(t, StateFailed, b.State())

	_, err := b.Compile("identity")
	assert.ErrorIs(t, err, ErrRuntimeInitFailed)
	assert.Equal(t, int32(1), loader.starts.Load())
}

func TestEntryPointPanics(t *testing.T) {
	loader := &fakeLoader{entry: func(argv []string, host Host) int {
		panic("runtime crashed")
	}}
	b := newFakeBridge(loader)

	_, err := b.Compile("identity")
	require.ErrorIs(t, err, ErrRuntimeInitFailed)

	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, -1, ie.ExitCode)
	assert.Contains(t, err.Error(), "runtime crashed")
}

func TestInitializeTwice(t *testing.T) {
	second := make(chan error, 1)
	loader := &fakeLoader{entry: func(argv []string, host Host) int {
		rt := newFakeRuntime()
		if err := host.Initialize(rt); err != nil {
			return 2
		}
		second <- host.Initialize(rt)
		return rt.run()
	}}
	b := newFakeBridge(loader)
	defer b.Close()

	_, err := b.Compile("identity")
	require.NoError(t, err)
	assert.ErrorIs(t, <-second, ErrAlreadyInitialized)
}

func TestCompileErrors(t *testing.T) {
	b := newFakeBridge(&fakeLoader{})
	defer b.Close()

	tests := []struct {
		name   string
		source string
	}{
		{name: "empty", source: ""},
		{name: "whitespace", source: "   "},
		{name: "invalid", source: "function ("},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := b.Compile(tt.source)
			assert.Nil(t, fn)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, ErrCompilationFailed, ce.Kind)
			assert.Contains(t, ce.Message, "SyntaxError")
		})
	}

	// A failed compile leaves the runtime usable.
	_, err := b.Compile("identity")
	assert.NoError(t, err)
	assert.Equal(t, StateReady, b.State())
}

func TestInvokeRoundTrip(t *testing.T) {
	b := newFakeBridge(&fakeLoader{})
	defer b.Close()

	fn, err := b.Compile("identity")
	require.NoError(t, err)
	assert.NotEmpty(t, fn.ID())

	payload := map[string]interface{}{"name": "edge", "tags": []string{"a", "b"}}
	got, err := fn.Invoke(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestInvokeConcurrentNoCrossTalk(t *testing.T) {
	loader := &fakeLoader{}
	b := newFakeBridge(loader)
	defer b.Close()

	fn, err := b.Compile("double")
	require.NoError(t, err)

	const workers = 16
	const calls = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				in := w*1000 + i
				got, err := fn.Invoke(in)
				if assert.NoError(t, err) {
					assert.Equal(t, in*2, got)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.False(t, loader.runtime().overlap.Load(), "runtime executed two calls at once")
	assert.Zero(t, b.pendingCount())
}

func TestInvokeExecutionFailed(t *testing.T) {
	b := newFakeBridge(&fakeLoader{})
	defer b.Close()

	fn, err := b.Compile("fail")
	require.NoError(t, err)

	_, err = fn.Invoke(7)
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrExecutionFailed, ce.Kind)
	assert.Equal(t, "boom: 7", ce.Message)

	// Still usable afterwards.
	_, err = fn.Invoke(8)
	assert.ErrorIs(t, err, ErrExecutionFailed)
}

func TestCloseReleasesPendingCalls(t *testing.T) {
	b := newFakeBridge(&fakeLoader{})

	hang, err := b.Compile("hang")
	require.NoError(t, err)
	identity, err := b.Compile("identity")
	require.NoError(t, err)

	const waiters = 5
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, err := hang.Invoke(nil)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return b.pendingCount() == waiters }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	for i := 0; i < waiters; i++ {
		select {
		case err := <-errs:
			var ce *CallError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, ErrClosed, ce.Kind)
		case <-time.After(time.Second):
			t.Fatal("pending invocation not released by Close")
		}
	}

	_, err = identity.Invoke(1)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = b.Compile("identity")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrRuntimeClosed, ce.Kind)
	assert.Equal(t, StateClosed, b.State())

	assert.NoError(t, b.Close())
}

func TestRuntimeExitAfterReady(t *testing.T) {
	loader := &fakeLoader{}
	b := newFakeBridge(loader)

	fn, err := b.Compile("identity")
	require.NoError(t, err)

	loader.runtime().Close()
	require.Eventually(t, func() bool { return b.State() == StateClosed }, time.Second, 5*time.Millisecond)

	_, err = b.Compile("identity")
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	_, err = fn.Invoke(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseBeforeStart(t *testing.T) {
	loader := &fakeLoader{}
	b := newFakeBridge(loader)
	require.NoError(t, b.Close())

	_, err := b.Compile("identity")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrRuntimeClosed, ce.Kind)
	assert.Zero(t, loader.loads.Load())
}

func TestInvokeContextDeadline(t *testing.T) {
	b := newFakeBridge(&fakeLoader{})
	defer b.Close()

	fn, err := b.Compile("hang")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = fn.InvokeContext(ctx, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Zero(t, b.pendingCount())
}

func TestCompileContextWhileBootstrapping(t *testing.T) {
	loader := &fakeLoader{delay: 200 * time.Millisecond}
	b := newFakeBridge(loader)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.CompileContext(ctx, "identity")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateInitializing, b.State())

	_, err = b.Compile("identity")
	assert.NoError(t, err)
	assert.Equal(t, int32(1), loader.loads.Load())
}

func TestReadyChannel(t *testing.T) {
	b := newFakeBridge(&fakeLoader{})
	defer b.Close()

	select {
	case <-b.Ready():
		t.Fatal("ready before start")
	default:
	}

	require.NoError(t, b.Start(context.Background()))
	select {
	case <-b.Ready():
	default:
		t.Fatal("not ready after Start")
	}
}

type panicLoader struct{}

func (panicLoader) Load(Config, *zap.Logger) (EntryPoint, error) {
	panic("loader exploded")
}

func TestLoaderPanics(t *testing.T) {
	b := New(WithConfig(Config{BaseDir: "/opt/app"}), WithLoader(panicLoader{}))

	_, err := b.Compile("identity")
	require.ErrorIs(t, err, ErrRuntimeInitFailed)
	assert.Contains(t, err.Error(), "loader exploded")

	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, -1, ie.ExitCode)

	done := make(chan error, 1)
	go func() {
		_, err := b.Compile("identity")
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRuntimeInitFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("second compile blocked after a loader panic")
	}
	assert.Equal(t, StateFailed, b.State())
}

func TestCloseWhileInitializing(t *testing.T) {
	release := make(chan struct{})
	initErr := make(chan error, 1)
	loader := &fakeLoader{entry: func(argv []string, host Host) int {
		<-release
		initErr <- host.Initialize(newFakeRuntime())
		return 0
	}}
	b := newFakeBridge(loader)

	done := make(chan error, 1)
	go func() {
		_, err := b.Compile("identity")
		done <- err
	}()
	require.Eventually(t, func() bool { return b.State() == StateInitializing }, time.Second, time.Millisecond)

	require.NoError(t, b.Close())
	select {
	case err := <-done:
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrRuntimeClosed, ce.Kind)
	case <-time.After(time.Second):
		t.Fatal("compile not released by Close")
	}

	close(release)
	select {
	case err := <-initErr:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("runtime never registered")
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestInitializeNilRuntime(t *testing.T) {
	initErr := make(chan error, 1)
	loader := &fakeLoader{entry: func(argv []string, host Host) int {
		initErr <- host.Initialize(nil)
		return 2
	}}
	b := newFakeBridge(loader)

	_, err := b.Compile("identity")
	assert.ErrorIs(t, err, ErrRuntimeInitFailed)
	assert.ErrorIs(t, <-initErr, ErrNilRuntime)
}

package edge

import (
	"runtime"

	goerrors "github.com/go-errors/errors"
	"go.uber.org/zap"
)

// bootstrap loads the runtime and starts its thread. Called at most once,
// under startMu.
func (b *Bridge) bootstrap() {
	b.mu.Lock()
	if b.state != StateUninitialized {
		b.mu.Unlock()
		// Closed before first use.
		b.gate.Fail(ErrClosed)
		return
	}
	b.state = StateInitializing
	b.mu.Unlock()

	entry, err := load(b.loader, b.cfg, b.log)
	if err != nil {
		b.log.Error("failed to load runtime", zap.Error(err))
		b.fail(&InitError{ExitCode: -1, Err: err})
		return
	}

	argv := b.cfg.Argv()
	go b.supervise(entry, argv)
}

// supervise owns the runtime thread for the life of the runtime. The
// goroutine stays locked to its OS thread; the thread is discarded when
// the runtime returns.
func (b *Bridge) supervise(entry EntryPoint, argv []string) {
	runtime.LockOSThread()

	b.log.Info("starting runtime", zap.Strings("argv", argv))
	code, err := runEntry(entry, argv, host{b})
	if err != nil {
		b.log.Error("runtime panicked", zap.Error(err), zap.String("stack", stackOf(err)))
	}

	if err == nil {
		err = ErrExitedBeforeInit
	}
	if b.fail(&InitError{ExitCode: code, Err: err}) {
		return
	}
	b.log.Warn("runtime exited", zap.Int("code", code))
	b.shutdown("runtime exited")
}

func load(l Loader, cfg Config, log *zap.Logger) (entry EntryPoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			entry, err = nil, goerrors.Wrap(r, 2)
		}
	}()
	return l.Load(cfg, log)
}

func runEntry(entry EntryPoint, argv []string, h Host) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, err = -1, goerrors.Wrap(r, 2)
		}
	}()
	return entry(argv, h), nil
}

func stackOf(err error) string {
	if e, ok := err.(*goerrors.Error); ok {
		return e.ErrorStack()
	}
	return ""
}

// fail records a bootstrap failure. It reports whether the gate was still
// pending, i.e. whether this call decided the outcome.
func (b *Bridge) fail(err *InitError) bool {
	if !b.gate.Fail(err) {
		return false
	}
	b.mu.Lock()
	if b.state == StateInitializing {
		b.state = StateFailed
	}
	b.mu.Unlock()
	b.log.Error("runtime failed to initialize", zap.Error(err))
	return true
}

// host is the Host handed to the runtime entry point.
type host struct {
	b *Bridge
}

func (h host) Initialize(rt Runtime) error {
	b := h.b
	if rt == nil {
		return ErrNilRuntime
	}

	b.mu.Lock()
	switch b.state {
	case StateInitializing:
	case StateClosed:
		b.mu.Unlock()
		return ErrClosed
	default:
		b.mu.Unlock()
		return ErrAlreadyInitialized
	}
	b.state = StateReady
	b.rt = rt
	b.mu.Unlock()

	b.gate.Ready()
	b.log.Info("runtime ready")
	return nil
}

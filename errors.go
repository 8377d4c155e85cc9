package edge

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedArchitecture is returned when the host word size is neither 32 nor 64 bits.
	ErrUnsupportedArchitecture = errors.New("edge: unsupported architecture, only 32 and 64 bit hosts are supported")

	// ErrLibraryNotFound is returned when the resolved runtime library cannot be loaded.
	ErrLibraryNotFound = errors.New("edge: runtime library not found")

	// ErrRuntimeInitFailed is the kind of every error caused by a failed bootstrap.
	ErrRuntimeInitFailed = errors.New("edge: unable to initialize the JavaScript runtime")

	// ErrExitedBeforeInit is recorded when the runtime entry point returns
	// without ever registering its compile entry point.
	ErrExitedBeforeInit = errors.New("edge: runtime exited before initialization")

	// ErrAlreadyInitialized is returned to a runtime that registers twice.
	ErrAlreadyInitialized = errors.New("edge: runtime already initialized")

	// ErrNilRuntime is returned to a runtime that registers a nil Runtime.
	ErrNilRuntime = errors.New("edge: runtime registered a nil Runtime")

	// ErrClosed is returned once the runtime has been shut down.
	ErrClosed = errors.New("edge: runtime closed")

	// ErrRuntimeClosed is the compile-side name of ErrClosed.
	ErrRuntimeClosed = ErrClosed

	// ErrCompilationFailed is the kind of errors raised while compiling source.
	ErrCompilationFailed = errors.New("edge: compilation failed")

	// ErrExecutionFailed is the kind of errors raised by a compiled function.
	ErrExecutionFailed = errors.New("edge: execution failed")
)

// LoadError reports a failure to resolve or load the runtime library.
type LoadError struct {
	Kind error
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InitError reports that the runtime never signaled readiness.
type InitError struct {
	ExitCode int
	Err      error
}

func (e *InitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (exit code %d)", ErrRuntimeInitFailed, e.ExitCode)
	}
	return fmt.Sprintf("%s (exit code %d): %v", ErrRuntimeInitFailed, e.ExitCode, e.Err)
}

func (e *InitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRuntimeInitFailed}
	}
	return []error{ErrRuntimeInitFailed, e.Err}
}

// CompileError is returned by Compile. Kind is one of ErrRuntimeInitFailed,
// ErrRuntimeClosed or ErrCompilationFailed.
type CompileError struct {
	Kind    error
	Message string
	Err     error
}

func (e *CompileError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CompileError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// CallError is returned by Invoke. Kind is ErrExecutionFailed or ErrClosed.
type CallError struct {
	Kind    error
	Message string
	Err     error
}

func (e *CallError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newCompileError(err error) *CompileError {
	switch {
	case errors.Is(err, ErrClosed):
		return &CompileError{Kind: ErrRuntimeClosed}
	case errors.Is(err, ErrRuntimeInitFailed):
		return &CompileError{Kind: ErrRuntimeInitFailed, Message: err.Error(), Err: err}
	default:
		return &CompileError{Kind: ErrCompilationFailed, Message: err.Error(), Err: err}
	}
}

func newCallError(err error) *CallError {
	if errors.Is(err, ErrClosed) {
		return &CallError{Kind: ErrClosed}
	}
	return &CallError{Kind: ErrExecutionFailed, Message: err.Error(), Err: err}
}

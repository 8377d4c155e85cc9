package edge

// EntryPoint starts an embedded runtime and runs its event loop until the
// runtime shuts down. It receives the startup arguments and the Host it
// must register with, and returns the runtime's exit code.
type EntryPoint func(argv []string, host Host) int

// Host is the bridge as seen from inside the runtime.
type Host interface {
	// Initialize registers the runtime's compile entry point. It must be
	// called exactly once, before the runtime does anything else useful.
	Initialize(rt Runtime) error
}

// Runtime is the compile entry point a runtime registers with its Host.
// Implementations must accept calls from any goroutine and hand them to
// the runtime's own thread.
type Runtime interface {
	// Compile turns source into a Callable and reports it through done.
	Compile(source string, done func(Callable, error))

	// Close asks the runtime to shut down. It must not block.
	Close()
}

// Callable is a compiled function living inside the runtime.
type Callable interface {
	// Call runs the function with input and reports the result through
	// done exactly once, unless the runtime shuts down first.
	Call(input interface{}, done func(interface{}, error))
}

package edge

import (
	"errors"
	"fmt"
	"plugin"

	"github.com/boomhut/goja-edge/internal/engine"
	"go.uber.org/zap"
)

// Loader resolves and loads the runtime, returning its entry point. A
// bridge calls Load at most once.
type Loader interface {
	Load(cfg Config, log *zap.Logger) (EntryPoint, error)
}

// GojaLoader runs the built-in goja runtime. There is no library to load;
// only the architecture is checked.
type GojaLoader struct {
	// Globals are installed into the JavaScript global scope at startup.
	Globals map[string]interface{}
}

// Load implements Loader.
func (l *GojaLoader) Load(cfg Config, log *zap.Logger) (EntryPoint, error) {
	if _, err := archDir(cfg.wordSize()); err != nil {
		return nil, err
	}

	opts := engine.Options{Logger: log.Named("runtime"), Globals: l.Globals}
	return func(argv []string, host Host) int {
		return engine.Start(argv, opts, func(e *engine.Engine) error {
			return host.Initialize(gojaRuntime{e})
		})
	}, nil
}

type gojaRuntime struct {
	e *engine.Engine
}

func (r gojaRuntime) Compile(source string, done func(Callable, error)) {
	r.e.Compile(source, func(fn *engine.Function, err error) {
		if err != nil {
			done(nil, engineError(err))
			return
		}
		done(gojaCallable{fn}, nil)
	})
}

func (r gojaRuntime) Close() {
	r.e.Close()
}

type gojaCallable struct {
	fn *engine.Function
}

func (c gojaCallable) Call(input interface{}, done func(interface{}, error)) {
	c.fn.Call(input, func(v interface{}, err error) {
		if err != nil {
			done(nil, engineError(err))
			return
		}
		done(v, nil)
	})
}

func engineError(err error) error {
	if errors.Is(err, engine.ErrClosed) {
		return ErrClosed
	}
	return err
}

const (
	defaultLibraryName = "node.so"
	defaultSymbol      = "Start"
)

// PluginLoader loads a native runtime built as a Go plugin. The plugin
// must export Start with the EntryPoint signature. A loaded plugin stays
// resident for the life of the process.
type PluginLoader struct {
	// Name is the library file name inside the architecture directory.
	// Defaults to "node.so".
	Name string

	// Symbol is the exported entry point. Defaults to "Start".
	Symbol string
}

// Load implements Loader.
func (l *PluginLoader) Load(cfg Config, log *zap.Logger) (EntryPoint, error) {
	name := l.Name
	if name == "" {
		name = defaultLibraryName
	}
	symbol := l.Symbol
	if symbol == "" {
		symbol = defaultSymbol
	}

	path, err := ResolveLibraryPath(cfg, name)
	if err != nil {
		return nil, err
	}
	log.Debug("loading runtime library", zap.String("path", path))

	p, err := plugin.Open(path)
	if err != nil {
		return nil, &LoadError{Kind: ErrLibraryNotFound, Path: path, Err: err}
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, &LoadError{Kind: ErrLibraryNotFound, Path: path, Err: err}
	}

	switch start := sym.(type) {
	case func([]string, Host) int:
		return start, nil
	case *func([]string, Host) int:
		return *start, nil
	case *EntryPoint:
		return *start, nil
	default:
		return nil, &LoadError{
			Kind: ErrLibraryNotFound,
			Path: path,
			Err:  fmt.Errorf("symbol %s has type %T", symbol, sym),
		}
	}
}

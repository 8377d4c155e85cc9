package edge

import (
	"github.com/boomhut/goja-edge/internal/transpile"
	"go.uber.org/zap"
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithConfig replaces the configuration read from the environment.
func WithConfig(cfg Config) Option {
	return func(b *Bridge) {
		b.cfg = cfg
	}
}

// WithLoader sets the runtime loader. Defaults to the goja runtime.
func WithLoader(l Loader) Option {
	return func(b *Bridge) {
		b.loader = l
	}
}

// WithLogger sets the logger used by the bridge and the runtime.
func WithLogger(log *zap.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

// WithGlobals runs the goja runtime with the given values in its global
// scope. It replaces any loader set earlier.
//
//	b := edge.New(edge.WithGlobals(map[string]interface{}{
//	    "apiKey": "secret-123",
//	}))
func WithGlobals(globals map[string]interface{}) Option {
	return func(b *Bridge) {
		b.loader = &GojaLoader{Globals: globals}
	}
}

// Syntax is the source language handed to Compile.
type Syntax = transpile.Syntax

const (
	SyntaxJavaScript = transpile.JavaScript
	SyntaxTypeScript = transpile.TypeScript
	SyntaxJSX        = transpile.JSX
	SyntaxTSX        = transpile.TSX
)

// ParseSyntax maps names such as "ts" or "tsx" to a Syntax.
func ParseSyntax(name string) (Syntax, error) {
	return transpile.ParseSyntax(name)
}

// CompileOption tunes a single Compile call.
type CompileOption func(*compileOptions)

type compileOptions struct {
	syntax Syntax
}

// WithSyntax transpiles the source from syntax before compiling it.
func WithSyntax(s Syntax) CompileOption {
	return func(o *compileOptions) {
		o.syntax = s
	}
}

// Package transpile lowers TypeScript and JSX function bodies to plain
// JavaScript the embedded runtime can compile.
package transpile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Syntax is the source language of a function body.
type Syntax int

const (
	JavaScript Syntax = iota
	TypeScript
	JSX
	TSX
)

func (s Syntax) String() string {
	switch s {
	case JavaScript:
		return "js"
	case TypeScript:
		return "ts"
	case JSX:
		return "jsx"
	case TSX:
		return "tsx"
	default:
		return fmt.Sprintf("Syntax(%d)", int(s))
	}
}

// ParseSyntax maps a file-extension style name to a Syntax.
func ParseSyntax(name string) (Syntax, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "js", "javascript":
		return JavaScript, nil
	case "ts", "typescript":
		return TypeScript, nil
	case "jsx":
		return JSX, nil
	case "tsx":
		return TSX, nil
	default:
		return JavaScript, fmt.Errorf("unknown syntax %q", name)
	}
}

func (s Syntax) loader() api.Loader {
	switch s {
	case TypeScript:
		return api.LoaderTS
	case JSX:
		return api.LoaderJSX
	case TSX:
		return api.LoaderTSX
	default:
		return api.LoaderJS
	}
}

const (
	bodyPrefix = "(function (require) {\n"
	bodySuffix = "\n})"
)

// Body transpiles a function body (source that may use a top-level
// return and the require binding) and returns an equivalent JavaScript
// body. JavaScript sources are returned untouched.
func Body(source string, syntax Syntax) (string, error) {
	if syntax == JavaScript {
		return source, nil
	}

	result := api.Transform(bodyPrefix+source+bodySuffix, api.TransformOptions{
		Loader:     syntax.loader(),
		Target:     api.ES2017,
		Sourcefile: "function." + syntax.String(),
		JSX:        api.JSXTransform,
	})
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		if msg.Location != nil {
			return "", fmt.Errorf("esbuild error: %s (line %d)", msg.Text, msg.Location.Line-1)
		}
		return "", fmt.Errorf("esbuild error: %s", msg.Text)
	}

	code := strings.TrimRight(strings.TrimSpace(string(result.Code)), ";")
	if code == "" {
		return "", errors.New("esbuild produced no output")
	}
	return "return " + code + "(require);", nil
}

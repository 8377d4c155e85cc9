package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Params are the runtime parameters recognised in argv.
type Params struct {
	StackSize int
	Strict    bool
	Unknown   []string
}

// ParseArgv splits argv into parameters and the bootstrap script path.
// argv[0] is the program name and the last entry is the script.
func ParseArgv(argv []string) (Params, string, error) {
	var p Params
	if len(argv) < 2 {
		return p, "", errors.New("expected program name and bootstrap script")
	}

	script := argv[len(argv)-1]
	for _, arg := range argv[1 : len(argv)-1] {
		name, value, _ := strings.Cut(arg, "=")
		switch name {
		case "--stack-size":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return p, "", fmt.Errorf("invalid --stack-size %q", value)
			}
			p.StackSize = n
		case "--use-strict":
			p.Strict = true
		default:
			p.Unknown = append(p.Unknown, arg)
		}
	}
	return p, script, nil
}

package edge

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by DefaultConfig.
const (
	EnvBaseDir    = "EDGE_BASE_DIR"
	EnvParams     = "EDGE_NODE_PARAMS"
	EnvNativePath = "EDGE_NATIVE_PATH"
	EnvBootstrap  = "EDGE_BOOTSTRAP"
)

const (
	defaultProgramName = "node"
	bootstrapFileName  = "double_edge.js"
)

// Config describes where the runtime lives and how it is started. It is
// read once, when the bridge first bootstraps the runtime.
type Config struct {
	// BaseDir anchors the runtime library and bootstrap script. Defaults to
	// the directory of the running executable.
	BaseDir string `yaml:"base_dir"`

	// LibraryPath overrides the architecture-specific library path.
	LibraryPath string `yaml:"library_path"`

	// Params holds extra whitespace-separated startup parameters.
	Params string `yaml:"params"`

	// BootstrapScript is the script handed to the runtime as its last
	// argument. Defaults to <BaseDir>/edge/double_edge.js.
	BootstrapScript string `yaml:"bootstrap_script"`

	// ProgramName is argv[0]. Defaults to "node".
	ProgramName string `yaml:"program_name"`

	// WordSize is the pointer width in bits. Zero means the host's.
	WordSize int `yaml:"-"`
}

// DefaultConfig builds a Config from the process environment.
func DefaultConfig() Config {
	return Config{
		BaseDir:         os.Getenv(EnvBaseDir),
		LibraryPath:     os.Getenv(EnvNativePath),
		Params:          os.Getenv(EnvParams),
		BootstrapScript: os.Getenv(EnvBootstrap),
	}
}

// LoadConfig reads a YAML file and overlays it on DefaultConfig. Values
// set in the file win over the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.BaseDir != "" {
		cfg.BaseDir = file.BaseDir
	}
	if file.LibraryPath != "" {
		cfg.LibraryPath = file.LibraryPath
	}
	if file.Params != "" {
		cfg.Params = file.Params
	}
	if file.BootstrapScript != "" {
		cfg.BootstrapScript = file.BootstrapScript
	}
	if file.ProgramName != "" {
		cfg.ProgramName = file.ProgramName
	}
	return cfg, nil
}

// Dir returns the base directory, falling back to the executable's
// directory and then the working directory.
func (c Config) Dir() string {
	if c.BaseDir != "" {
		return c.BaseDir
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}

// ScriptPath returns the bootstrap script path.
func (c Config) ScriptPath() string {
	if c.BootstrapScript != "" {
		return c.BootstrapScript
	}
	return filepath.Join(c.Dir(), "edge", bootstrapFileName)
}

// Argv assembles the runtime startup arguments: program name, extra
// parameters and the bootstrap script.
func (c Config) Argv() []string {
	name := c.ProgramName
	if name == "" {
		name = defaultProgramName
	}
	argv := []string{name}
	argv = append(argv, strings.Fields(c.Params)...)
	return append(argv, c.ScriptPath())
}

func (c Config) wordSize() int {
	if c.WordSize != 0 {
		return c.WordSize
	}
	return bits.UintSize
}

// ResolveLibraryPath picks the runtime library for the configured word
// size, unless LibraryPath overrides it.
func ResolveLibraryPath(c Config, name string) (string, error) {
	if c.LibraryPath != "" {
		return c.LibraryPath, nil
	}
	arch, err := archDir(c.wordSize())
	if err != nil {
		return "", err
	}
	return filepath.Join(c.Dir(), "edge", arch, name), nil
}

func archDir(wordSize int) (string, error) {
	switch wordSize {
	case 32:
		return "x86", nil
	case 64:
		return "x64", nil
	default:
		return "", &LoadError{Kind: ErrUnsupportedArchitecture, Err: fmt.Errorf("word size %d", wordSize)}
	}
}

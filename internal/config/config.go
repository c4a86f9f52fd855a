// Package config handles the wasmpipe.toml project file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/wasm"
)

// FileName is the project file searched for by FindAndLoad.
const FileName = "wasmpipe.toml"

// DefaultOperation is invoked when neither a flag nor the file names one.
const DefaultOperation = "run"

// OutputModes lists the accepted output.mode values.
var OutputModes = []string{"compact", "pretty", "canonical"}

// Config represents a wasmpipe.toml file layered over the defaults.
type Config struct {
	Runtime Runtime `toml:"runtime"`
	Codec   Codec   `toml:"codec"`
	Invoke  Invoke  `toml:"invoke"`
	Journal Journal `toml:"journal"`
	Output  Output  `toml:"output"`

	// Dir is the directory containing the file (set at load time). Relative
	// paths in the file are resolved against it.
	Dir string `toml:"-"`
}

// Runtime configures the WebAssembly engine.
type Runtime struct {
	Engine         string        `toml:"engine"`
	WASI           bool          `toml:"wasi"`
	Timeout        time.Duration `toml:"timeout"`
	MaxMemoryPages uint32        `toml:"max_memory_pages"`
	CacheDir       string        `toml:"cache_dir"`
}

// Codec selects the binary serialization.
type Codec struct {
	Name string `toml:"name"`
}

// Invoke configures the call itself.
type Invoke struct {
	Operation string `toml:"operation"`
	Schema    string `toml:"schema"`
}

// Journal configures the optional SQLite run journal.
type Journal struct {
	Path string `toml:"path"`
}

// Output configures how results are printed.
type Output struct {
	Mode  string `toml:"mode"`
	Color bool   `toml:"color"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Runtime: Runtime{
			Engine: wasm.DefaultEngine,
			WASI:   true,
		},
		Codec:  Codec{Name: codec.Default},
		Invoke: Invoke{Operation: DefaultOperation},
		Output: Output{Mode: "compact"},
	}
}

// Load parses the file at path over the defaults and validates the result.
// Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	cfg.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// FindAndLoad walks up from startDir looking for wasmpipe.toml and loads the
// first one found. Returns nil if there is none.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks enumerated fields against what this build supports.
func (c *Config) Validate() error {
	if !slices.Contains(wasm.Engines(), c.Runtime.Engine) {
		return fmt.Errorf("runtime.engine %q: must be one of %v", c.Runtime.Engine, wasm.Engines())
	}
	if !slices.Contains(codec.Names(), c.Codec.Name) {
		return fmt.Errorf("codec.name %q: must be one of %v", c.Codec.Name, codec.Names())
	}
	if !slices.Contains(OutputModes, c.Output.Mode) {
		return fmt.Errorf("output.mode %q: must be one of %v", c.Output.Mode, OutputModes)
	}
	if c.Invoke.Operation == "" {
		return fmt.Errorf("invoke.operation must not be empty")
	}
	if c.Runtime.Timeout < 0 {
		return fmt.Errorf("runtime.timeout must not be negative")
	}
	return nil
}

// Resolve makes a path from the file absolute relative to Dir. Empty paths
// and absolute paths are returned unchanged.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

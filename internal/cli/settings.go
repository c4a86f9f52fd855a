package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/config"
	"github.com/roach88/wasmpipe/internal/wasm"
)

// invokeFlags are the flags that override wasmpipe.toml. A command registers
// the subset it uses; only flags set on the command line take effect.
type invokeFlags struct {
	Engine    string
	Codec     string
	Operation string
	Schema    string
	Journal   string
	Output    string
	Timeout   time.Duration
	NoWASI    bool
	Color     bool
}

func (f *invokeFlags) addEngine(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Engine, "engine", "", fmt.Sprintf("WebAssembly engine %v (default %q)", wasm.Engines(), wasm.DefaultEngine))
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "abort the invocation after this long (0 = no limit)")
	cmd.Flags().BoolVar(&f.NoWASI, "no-wasi", false, "do not provide WASI imports to the module")
}

func (f *invokeFlags) addCodec(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Codec, "codec", "", fmt.Sprintf("binary codec %v (default %q)", codec.Names(), codec.Default))
}

func (f *invokeFlags) addJournal(cmd *cobra.Command, usage string) {
	cmd.Flags().StringVar(&f.Journal, "journal", "", usage)
}

// settings is the effective configuration of one command.
type settings struct {
	Engine         string
	WASI           bool
	Timeout        time.Duration
	MaxMemoryPages uint32
	CacheDir       string
	Codec          string
	Operation      string
	Schema         string
	Journal        string
	Output         string
	Color          bool
}

// resolveSettings layers the flags set on cmd over cfg.
func resolveSettings(cmd *cobra.Command, cfg *config.Config, f *invokeFlags) settings {
	s := settings{
		Engine:         cfg.Runtime.Engine,
		WASI:           cfg.Runtime.WASI,
		Timeout:        cfg.Runtime.Timeout,
		MaxMemoryPages: cfg.Runtime.MaxMemoryPages,
		CacheDir:       cfg.Resolve(cfg.Runtime.CacheDir),
		Codec:          cfg.Codec.Name,
		Operation:      cfg.Invoke.Operation,
		Schema:         cfg.Resolve(cfg.Invoke.Schema),
		Journal:        cfg.Resolve(cfg.Journal.Path),
		Output:         cfg.Output.Mode,
		Color:          cfg.Output.Color,
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		s.Engine = f.Engine
	}
	if flags.Changed("no-wasi") {
		s.WASI = !f.NoWASI
	}
	if flags.Changed("timeout") {
		s.Timeout = f.Timeout
	}
	if flags.Changed("codec") {
		s.Codec = f.Codec
	}
	if flags.Changed("op") {
		s.Operation = f.Operation
	}
	if flags.Changed("schema") {
		s.Schema = f.Schema
	}
	if flags.Changed("journal") {
		s.Journal = f.Journal
	}
	if flags.Changed("output") {
		s.Output = f.Output
	}
	if flags.Changed("color") {
		s.Color = f.Color
	}
	return s
}

func (s settings) validate() error {
	if !slices.Contains(wasm.Engines(), s.Engine) {
		return fmt.Errorf("unknown engine %q: must be one of %v", s.Engine, wasm.Engines())
	}
	if _, err := codec.Get(s.Codec); err != nil {
		return err
	}
	if !slices.Contains(config.OutputModes, s.Output) {
		return fmt.Errorf("unknown output mode %q: must be one of %v", s.Output, config.OutputModes)
	}
	if s.Operation == "" {
		return fmt.Errorf("operation must not be empty")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

func (s settings) newEngine(ctx context.Context) (wasm.Engine, error) {
	return wasm.NewEngine(ctx, s.Engine, wasm.Options{
		WASI:             s.WASI,
		MemoryLimitPages: s.MaxMemoryPages,
		CacheDir:         s.CacheDir,
	})
}

// commandSettings resolves and validates the settings for cmd, reporting a
// failure through the formatter.
func commandSettings(cmd *cobra.Command, opts *RootOptions, f *invokeFlags) (settings, error) {
	s := resolveSettings(cmd, opts.effectiveConfig(), f)
	if err := s.validate(); err != nil {
		return s, opts.formatter(cmd).Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil, err)
	}
	return s, nil
}

// codeForPath picks the error code for a failure to open a named file.
func codeForPath(err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrCodeNotFound
	}
	return ErrCodeGeneric
}

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wasmpipe/internal/config"
	"github.com/roach88/wasmpipe/internal/wasm/wasmtest"
)

// cliResult is what one Execute call printed and returned.
type cliResult struct {
	stdout string
	stderr string
	code   int
}

// runCLI executes the CLI with dir/wasmpipe.toml as its config, creating an
// empty one if dir has none, so the tests never pick up a file from the
// surrounding tree.
func runCLI(t *testing.T, dir, stdin string, args ...string) cliResult {
	t.Helper()

	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		require.NoError(t, os.WriteFile(cfgPath, nil, 0o644))
	}

	var stdout, stderr bytes.Buffer
	argv := append([]string{"--config", cfgPath}, args...)
	code := Execute(t.Context(), argv, strings.NewReader(stdin), &stdout, &stderr)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

// newModuleDir writes fixture.wasm and doc.json into a temp dir.
func newModuleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wasmtest.New().
		Echo("run").
		Echo("transform").
		Fail("reject", "payload rejected: missing field").
		Trap("trap").
		WriteFile(t, dir, "fixture.wasm")
	writeFile(t, dir, "doc.json", `{"name":"widget","count":3,"tags":["a","b"]}`)
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// decodeResponse parses a --format json response.
func decodeResponse(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "wasmpipe", cmd.Use)
	assert.Contains(t, cmd.Long, "WebAssembly module")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "exports", "encode", "decode", "validate", "test", "history", "replay"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"op", "codec", "engine", "schema", "query", "output", "color", "journal", "timeout", "no-wasi"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "flag --%s", name)
	}
	assert.Equal(t, "o", runCmd.Flags().Lookup("output").Shorthand)
}

func TestReplayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	replayCmd, _, err := cmd.Find([]string{"replay"})
	require.NoError(t, err)

	require.NotNil(t, replayCmd.Flags().Lookup("journal"))
	require.NotNil(t, replayCmd.Flags().Lookup("run"))
	require.NotNil(t, replayCmd.Flags().Lookup("engine"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	dir := newModuleDir(t)
	res := runCLI(t, dir, "", "--format", "invalid", "exports", filepath.Join(dir, "fixture.wasm"))

	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid format")
}

func TestExecute_CommandErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"run", "--bogus"}, "invalid flags"},
		{"missing args", []string{"run"}, "invalid arguments"},
		{"too many args", []string{"exports", "a.wasm", "b.wasm"}, "invalid arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, dir, "", tt.args...)
			assert.Equal(t, ExitCommandError, res.code)
			assert.Contains(t, res.stderr, tt.want)
		})
	}
}

func TestExecute_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, config.FileName, "[runtime]\nengine = \"v8\"\n")

	res := runCLI(t, dir, "", "history")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "failed to load config")
	assert.Contains(t, res.stderr, "runtime.engine")
}

func TestExecute_ConfigSuppliesDefaults(t *testing.T) {
	dir := newModuleDir(t)
	writeFile(t, dir, config.FileName, "[invoke]\noperation = \"transform\"\n\n[output]\nmode = \"canonical\"\n")

	res := runCLI(t, dir, "", "run", filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "doc.json"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, `{"count":3,"name":"widget","tags":["a","b"]}`+"\n", res.stdout)
}

func TestExecute_FlagsOverrideConfig(t *testing.T) {
	dir := newModuleDir(t)
	writeFile(t, dir, config.FileName, "[invoke]\noperation = \"missing\"\n\n[output]\nmode = \"canonical\"\n")

	res := runCLI(t, dir, "", "run", filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "doc.json"),
		"--op", "run", "--output", "compact")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, `{"name":"widget","count":3,"tags":["a","b"]}`+"\n", res.stdout)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))

	wrapped := WrapExitError(ExitFailure, "outer", errors.New("inner"))
	assert.Equal(t, "outer: inner", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/store"
)

func TestRun_Echo(t *testing.T) {
	dir := newModuleDir(t)

	res := runCLI(t, dir, "", "run", filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "doc.json"))

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, `{"name":"widget","count":3,"tags":["a","b"]}`+"\n", res.stdout)
}

func TestRun_Stdin(t *testing.T) {
	dir := newModuleDir(t)

	res := runCLI(t, dir, `{"z":1,"a":[true,null]}`, "run", filepath.Join(dir, "fixture.wasm"), "-")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, `{"z":1,"a":[true,null]}`+"\n", res.stdout)
}

func TestRun_Operation(t *testing.T) {
	dir := newModuleDir(t)

	res := runCLI(t, dir, `{"k":"v"}`, "run", filepath.Join(dir, "fixture.wasm"), "-", "--op", "transform")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, `{"k":"v"}`+"\n", res.stdout)
}

func TestRun_EveryCodec(t *testing.T) {
	dir := newModuleDir(t)
	// Keys in sorted order: protobuf does not keep object order.
	input := `{"name":"widget","none":null,"ok":true,"tags":["a","b"]}`

	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			res := runCLI(t, dir, input, "run", filepath.Join(dir, "fixture.wasm"), "-", "--codec", name)
			require.Equal(t, ExitSuccess, res.code, res.stderr)
			assert.Equal(t, input+"\n", res.stdout)
		})
	}
}

func TestRun_OutputModes(t *testing.T) {
	dir := newModuleDir(t)
	input := `{"b":1,"a":{"y":2,"x":[1,2]}}`

	tests := []struct {
		mode string
		want string
	}{
		{"compact", `{"b":1,"a":{"y":2,"x":[1,2]}}` + "\n"},
		{"canonical", `{"a":{"x":[1,2],"y":2},"b":1}` + "\n"},
		{"pretty", "{\n  \"b\": 1,\n  \"a\": {\n    \"y\": 2,\n    \"x\": [1, 2]\n  }\n}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			res := runCLI(t, dir, input, "run", filepath.Join(dir, "fixture.wasm"), "-", "--output", tt.mode)
			require.Equal(t, ExitSuccess, res.code, res.stderr)
			assert.Equal(t, tt.want, res.stdout)
		})
	}
}

func TestRun_Color(t *testing.T) {
	dir := newModuleDir(t)

	res := runCLI(t, dir, `{"a":"b"}`, "run", filepath.Join(dir, "fixture.wasm"), "-", "--color")

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "\x1b[")
	assert.Contains(t, res.stdout, `"b"`)
}

func TestRun_Query(t *testing.T) {
	dir := newModuleDir(t)
	module := filepath.Join(dir, "fixture.wasm")
	doc := filepath.Join(dir, "doc.json")

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"field", ".count", "3\n"},
		{"several results", ".tags[]", "\"a\"\n\"b\"\n"},
		{"construct", "{n: .name, size: (.tags | length)}", `{"n":"widget","size":2}` + "\n"},
		{"empty", "empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, dir, "", "run", module, doc, "--query", tt.query)
			require.Equal(t, ExitSuccess, res.code, res.stderr)
			assert.Equal(t, tt.want, res.stdout)
		})
	}
}

func TestRun_QueryErrors(t *testing.T) {
	dir := newModuleDir(t)
	module := filepath.Join(dir, "fixture.wasm")
	doc := filepath.Join(dir, "doc.json")

	res := runCLI(t, dir, "", "run", module, doc, "--query", ".[")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, ErrCodeQuery)

	res = runCLI(t, dir, "", "run", module, doc, "--query", `error("nope")`)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, ErrCodeQuery)
}

func TestRun_JSONFormat(t *testing.T) {
	dir := newModuleDir(t)

	res := runCLI(t, dir, "", "--format", "json", "run", filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "doc.json"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	resp := decodeResponse(t, res.stdout)
	assert.Equal(t, "ok", resp["status"])
	data := resp["data"].(map[string]any)
	assert.NotEmpty(t, data["run_id"])
	assert.Len(t, data["module_digest"], 64)
	assert.Equal(t, map[string]any{
		"name":  "widget",
		"count": float64(3),
		"tags":  []any{"a", "b"},
	}, data["output"])
}

func TestRun_JSONFormatQueryCollapses(t *testing.T) {
	dir := newModuleDir(t)

	res := runCLI(t, dir, "", "--format", "json", "run", filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "doc.json"),
		"--query", ".tags[]")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	data := decodeResponse(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, []any{"a", "b"}, data["output"])
}

func TestRun_PipelineErrors(t *testing.T) {
	dir := newModuleDir(t)
	module := filepath.Join(dir, "fixture.wasm")
	writeFile(t, dir, "bad.json", `{"a":`)
	writeFile(t, dir, "junk.wasm", "not wasm")

	tests := []struct {
		name     string
		args     []string
		exitCode int
		code     string
	}{
		{"missing input", []string{module, filepath.Join(dir, "absent.json")}, ExitCommandError, pipeline.CodeNotFound},
		{"invalid json", []string{module, filepath.Join(dir, "bad.json")}, ExitFailure, pipeline.CodeInvalidJSON},
		{"missing module", []string{filepath.Join(dir, "absent.wasm"), filepath.Join(dir, "doc.json")}, ExitFailure, pipeline.CodeLoad},
		{"not a module", []string{filepath.Join(dir, "junk.wasm"), filepath.Join(dir, "doc.json")}, ExitFailure, pipeline.CodeLoad},
		{"unknown operation", []string{module, filepath.Join(dir, "doc.json"), "--op", "nope"}, ExitFailure, pipeline.CodeOperationNotFound},
		{"trap", []string{module, filepath.Join(dir, "doc.json"), "--op", "trap"}, ExitFailure, pipeline.CodeInvocation},
		{"guest error", []string{module, filepath.Join(dir, "doc.json"), "--op", "reject"}, ExitFailure, pipeline.CodeGuest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, dir, "", append([]string{"--format", "json", "run"}, tt.args...)...)
			assert.Equal(t, tt.exitCode, res.code)

			resp := decodeResponse(t, res.stdout)
			assert.Equal(t, "error", resp["status"])
			cliErr := resp["error"].(map[string]any)
			assert.Equal(t, tt.code, cliErr["code"])
			details := cliErr["details"].(map[string]any)
			assert.Equal(t, pipeline.KindForCode(tt.code), details["kind"])
		})
	}
}

func TestRun_GuestMessageInText(t *testing.T) {
	dir := newModuleDir(t)

	res := runCLI(t, dir, "", "run", filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "doc.json"), "--op", "reject")

	assert.Equal(t, ExitFailure, res.code)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "Error [E304]")
	assert.Contains(t, res.stderr, "payload rejected: missing field")
	assert.NotContains(t, res.stderr, "Error: ", "reported errors are printed once")
}

func TestRun_Schema(t *testing.T) {
	dir := newModuleDir(t)
	schemaPath := writeFile(t, dir, "schema.cue", `
#Input: {
	name:  string
	count: int & >0
	tags?: [...string]
}
#Output: {
	name: string
	...
}
`)
	module := filepath.Join(dir, "fixture.wasm")

	res := runCLI(t, dir, "", "run", module, filepath.Join(dir, "doc.json"), "--schema", schemaPath)
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = runCLI(t, dir, `{"name":"widget","count":0}`, "run", module, "-", "--schema", schemaPath)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, pipeline.CodeSchema)

	res = runCLI(t, dir, "", "run", module, filepath.Join(dir, "doc.json"), "--schema", filepath.Join(dir, "absent.cue"))
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, ErrCodeNotFound)
}

func TestRun_Journal(t *testing.T) {
	dir := newModuleDir(t)
	module := filepath.Join(dir, "fixture.wasm")
	journal := filepath.Join(dir, "runs.db")

	res := runCLI(t, dir, "", "run", module, filepath.Join(dir, "doc.json"), "--journal", journal)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	res = runCLI(t, dir, "", "run", module, filepath.Join(dir, "doc.json"), "--journal", journal, "--op", "reject")
	require.Equal(t, ExitFailure, res.code)

	st, err := store.Open(journal)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, int64(1), runs[0].Seq)
	assert.True(t, runs[0].Succeeded())
	assert.Equal(t, "run", runs[0].Operation)
	assert.Equal(t, "cbor", runs[0].Codec)

	assert.Equal(t, int64(2), runs[1].Seq)
	assert.Equal(t, pipeline.CodeGuest, runs[1].ErrorCode)
}

func TestRun_FixedRunID(t *testing.T) {
	dir := newModuleDir(t)
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDs:         pipeline.NewFixedGenerator("fixed-run-001"),
	}

	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := runModule(opts, filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "doc.json"), cmd)
	require.NoError(t, err)

	data := decodeResponse(t, buf.String())["data"].(map[string]any)
	assert.Equal(t, "fixed-run-001", data["run_id"])
	assert.NotContains(t, data, "seq", "seq is only set when journaling")
}

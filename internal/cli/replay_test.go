package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wasmpipe/internal/store"
	"github.com/roach88/wasmpipe/internal/value"
	"github.com/roach88/wasmpipe/internal/wasm/wasmtest"
)

func TestReplay_Deterministic(t *testing.T) {
	dir := newModuleDir(t)
	journal := newJournal(t, dir)

	res := runCLI(t, dir, "", "replay", "--journal", journal)

	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	assert.Contains(t, res.stdout, "Replay Summary: 2 run(s)")
	assert.Contains(t, res.stdout, "✓ Run 1:")
	assert.Contains(t, res.stdout, "✓ Run 2:")
	assert.Contains(t, res.stdout, "✓ All runs replayed identically")
}

func TestReplay_DoesNotJournal(t *testing.T) {
	dir := newModuleDir(t)
	journal := newJournal(t, dir)

	res := runCLI(t, dir, "", "replay", "--journal", journal)
	require.Equal(t, ExitSuccess, res.code, res.stdout)

	st, err := store.Open(journal)
	require.NoError(t, err)
	defer st.Close()
	seq, err := st.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestReplay_ModuleChanged(t *testing.T) {
	dir := newModuleDir(t)
	journal := newJournal(t, dir)

	// Rebuild the module so "run" ignores its input; "reject" still fails
	// the same way.
	wasmtest.New().
		Return("run", []byte{0xa1, 0x61, 0x61, 0x01}).
		Fail("reject", "payload rejected: missing field").
		WriteFile(t, dir, "fixture.wasm")

	res := runCLI(t, dir, "", "replay", "--journal", journal)

	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "✗ Run 1:")
	assert.Contains(t, res.stdout, "Warning: module changed")
	assert.Contains(t, res.stdout, "✓ Run 2:")
	assert.Contains(t, res.stdout, "✗ 1 run(s) did not replay identically")
}

func TestReplay_JSON(t *testing.T) {
	dir := newModuleDir(t)
	journal := newJournal(t, dir)
	wasmtest.New().Echo("transform").WriteFile(t, dir, "fixture.wasm")

	res := runCLI(t, dir, "", "--format", "json", "replay", "--journal", journal)
	assert.Equal(t, ExitFailure, res.code)

	resp := decodeResponse(t, res.stdout)
	assert.Equal(t, "error", resp["status"])
	data := resp["data"].(map[string]any)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(2), data["mismatched"])
	assert.Equal(t, false, data["deterministic"])

	first := data["runs"].([]any)[0].(map[string]any)
	assert.Equal(t, "mismatch", first["status"])
	assert.Equal(t, "E302", first["got_code"])
}

func TestReplay_SingleRun(t *testing.T) {
	dir := newModuleDir(t)
	journal := newJournal(t, dir)

	st, err := store.Open(journal)
	require.NoError(t, err)
	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	res := runCLI(t, dir, "", "--format", "json", "replay", "--journal", journal, "--run", runs[1].ID)
	require.Equal(t, ExitSuccess, res.code, res.stdout)

	data := decodeResponse(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["total"])
	outcome := data["runs"].([]any)[0].(map[string]any)
	assert.Equal(t, runs[1].ID, outcome["run_id"])
	assert.Equal(t, "match", outcome["status"])
	assert.Equal(t, "E304", outcome["want_code"])

	res = runCLI(t, dir, "", "replay", "--journal", journal, "--run", "no-such-run")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "run not found")
}

func TestReplay_SkipsRunsWithoutInput(t *testing.T) {
	dir := newModuleDir(t)
	journal := filepath.Join(dir, "runs.db")
	writeFile(t, dir, "bad.json", `{"a":`)

	res := runCLI(t, dir, "", "run", filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "bad.json"), "--journal", journal)
	require.Equal(t, ExitFailure, res.code)

	res = runCLI(t, dir, "", "replay", "--journal", journal)
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	assert.Contains(t, res.stdout, "- Run 1:")
	assert.Contains(t, res.stdout, "Skipped: run has no recorded input")
}

func TestReplay_EmptyJournal(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "runs.db")
	st, err := store.Open(journal)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	res := runCLI(t, dir, "", "replay", "--journal", journal)
	require.Equal(t, ExitSuccess, res.code)
	assert.Equal(t, "No runs recorded.\n", res.stdout)
}

func TestReplay_RecordedEngine(t *testing.T) {
	dir := newModuleDir(t)
	journal := filepath.Join(dir, "runs.db")

	st, err := store.Open(journal)
	require.NoError(t, err)
	input := value.NewObject(value.M("a", value.Int(1)))
	_, _, err = st.WriteRun(context.Background(), store.Run{
		ID:         "run-unknown-engine",
		ModulePath: filepath.Join(dir, "fixture.wasm"),
		Engine:     "v8",
		Codec:      "cbor",
		Operation:  "run",
		Input:      input,
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	res := runCLI(t, dir, "", "replay", "--journal", journal)
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "failed to create engine")

	// --engine overrides whatever the run was recorded with.
	res = runCLI(t, dir, "", "replay", "--journal", journal, "--engine", "wazero")
	assert.Equal(t, ExitFailure, res.code, "the journaled run has no output digest to match")
	assert.Contains(t, res.stdout, "✗ Run 1:")
}

func TestReplay_SchemaRejectedRun(t *testing.T) {
	dir := newModuleDir(t)
	journal := filepath.Join(dir, "runs.db")
	schemaPath := writeFile(t, dir, "strict.cue", "#Input: {name: int, ...}\n")

	res := runCLI(t, dir, "", "run", filepath.Join(dir, "fixture.wasm"), filepath.Join(dir, "doc.json"),
		"--schema", schemaPath, "--journal", journal)
	require.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "E202")

	res = runCLI(t, dir, "", "replay", "--journal", journal)
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	assert.Contains(t, res.stdout, "✓ Run 1:")
	assert.Contains(t, res.stdout, "✓ All runs replayed identically")
}

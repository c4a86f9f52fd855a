package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/wasmpipe/internal/value"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a successful run with minimal required fields.
func createTestRun(id string) Run {
	input := value.NewObject(value.M("id", value.String(id)))
	return Run{
		ID:           id,
		ModulePath:   "testdata/echo.wasm",
		ModuleDigest: "module-digest",
		Engine:       "wazero",
		Codec:        "cbor",
		Operation:    "echo",
		Input:        input,
		Output:       input,
		OutputDigest: value.MustDigest(input),
	}
}

package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wasmpipe/internal/store"
	"github.com/roach88/wasmpipe/internal/value"
)

func TestRunWithGolden_Echo(t *testing.T) {
	dir := newFixtureDir(t)
	s := loadInline(t, dir, `
name: echo_widget
description: "Echo returns its input"
module: fixture.wasm
input:
  name: widget
  count: 3
  tags: [a, b]
expect:
  contains: {name: widget}
`)

	// First run with -update to create golden file:
	//   go test ./internal/harness -run TestRunWithGolden_Echo -update
	err := RunWithGolden(t, s)
	require.NoError(t, err)
}

func TestRunWithGolden_GuestFailure(t *testing.T) {
	dir := newFixtureDir(t)
	s := loadInline(t, dir, `
name: guest_rejects
description: "Guest failures snapshot kind and code only"
module: fixture.wasm
operation: reject
input: {}
expect:
  error: guest
`)

	err := RunWithGolden(t, s)
	require.NoError(t, err)
}

func TestAssertGolden_FromResult(t *testing.T) {
	dir := newFixtureDir(t)
	s := loadInline(t, dir, `
name: echo_protobuf
description: "Protobuf sorts keys on the way back"
module: fixture.wasm
codec: protobuf
run_id: fixed-run-001
input: {b: 1.5, a: true}
expect:
  output: {a: true, b: 1.5}
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	err = AssertGolden(t, "echo_protobuf", result)
	require.NoError(t, err)
}

func TestSnapshot_Canonical(t *testing.T) {
	result := &Result{
		Output: value.NewObject(value.M("b", value.Int(1)), value.M("a", value.Float(0.5))),
		Run: store.Run{
			ID:        "fixed",
			Seq:       2,
			Engine:    "wazero",
			Codec:     "cbor",
			Operation: "run",
			Output:    value.NewObject(value.M("b", value.Int(1)), value.M("a", value.Float(0.5))),
		},
	}

	data, err := Snapshot("canonical", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"codec":"cbor","engine":"wazero","operation":"run","output":{"a":0.5,"b":1},"run_id":"fixed","scenario":"canonical","seq":2}`,
		string(data))
}

func TestSnapshot_Failure(t *testing.T) {
	result := &Result{
		ErrorKind:    "invocation",
		ErrorCode:    "E303",
		ErrorMessage: "invoke: operation \"trap\" trapped at /tmp/x.wasm",
		Run: store.Run{
			ID:           "fixed",
			Seq:          1,
			Engine:       "wazero",
			Codec:        "json",
			Operation:    "trap",
			ErrorCode:    "E303",
			ErrorMessage: "invoke: operation \"trap\" trapped at /tmp/x.wasm",
		},
	}

	data, err := Snapshot("trapped", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"codec":"json","engine":"wazero","error":{"code":"E303","kind":"invocation"},"operation":"trap","run_id":"fixed","scenario":"trapped","seq":1}`,
		string(data))
	assert.NotContains(t, string(data), "/tmp")
}

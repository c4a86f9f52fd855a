// Package harness runs scenario files against WebAssembly modules.
//
// A scenario names a module, an operation and an input document, and states
// what the run must produce: an output document, a subset of one, or an
// error kind.
//
// # Scenario Format
//
//	name: upper_case
//	description: "Strings are upper-cased"
//	module: ../build/upper.wasm
//	operation: run
//	codec: cbor
//	input:
//	  name: widget
//	  count: 3
//	expect:
//	  output:
//	    name: WIDGET
//	    count: 3
//
// Paths (module, input_file, schema) are relative to the scenario file.
// Inline input keeps the key order written in the file, which matters for
// codecs that preserve it.
//
// Expectations:
//
//   - output: the decoded result must equal this document exactly
//   - contains: every key given must be present with an equal value,
//     extra keys are ignored
//   - error: the run must fail with this kind (not_found, invalid_json,
//     schema, load, operation_not_found, invocation, guest, encode, decode)
//   - message: substring of the failure message, only with error
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run ID (run_id, or a default) and is
// journaled into a fresh in-memory SQLite store. The journaled record is the
// snapshot compared against golden files, so results are identical across
// runs.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/upper.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness

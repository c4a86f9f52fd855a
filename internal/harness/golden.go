package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/wasmpipe/internal/value"
)

// Snapshot renders the journaled run of a scenario as canonical JSON.
//
// The module digest and the error message are left out: both depend on where
// and how the fixture was built, not on what the module computed.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	rec := result.Run
	snap := value.NewObject(
		value.M("scenario", value.String(scenarioName)),
		value.M("run_id", value.String(rec.ID)),
		value.M("seq", value.Int(rec.Seq)),
		value.M("engine", value.String(rec.Engine)),
		value.M("codec", value.String(rec.Codec)),
		value.M("operation", value.String(rec.Operation)),
	)
	if rec.Succeeded() {
		snap.Set("output", rec.Output)
	} else {
		snap.Set("error", value.NewObject(
			value.M("kind", value.String(result.ErrorKind)),
			value.M("code", value.String(rec.ErrorCode)),
		))
	}
	return value.MarshalCanonical(snap)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

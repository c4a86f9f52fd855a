package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/schema"
	"github.com/roach88/wasmpipe/internal/store"
	"github.com/roach88/wasmpipe/internal/value"
	"github.com/roach88/wasmpipe/internal/wasm"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal and a fresh engine, with a
// fixed run ID, so results are reproducible.
//
// Execution flow:
// 1. Create the in-memory journal, engine and codec
// 2. Run the pipeline on the scenario input
// 3. Read the journaled run back
// 4. Check the expectation
//
// A failing run is not an error: it is recorded in the result and checked
// against expect.error. Errors are returned only when the scenario itself
// cannot be executed.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng, err := wasm.NewEngine(ctx, scenario.engineName(), wasm.Options{
		WASI:   scenario.WASI,
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err != nil {
		return nil, err
	}
	defer eng.Close(ctx)

	cdc, err := codec.Get(scenario.codecName())
	if err != nil {
		return nil, err
	}

	var sch *schema.Schema
	if scenario.Schema != "" {
		if sch, err = schema.Load(scenario.resolve(scenario.Schema)); err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
	}

	req, err := scenario.request()
	if err != nil {
		return nil, err
	}

	p := &pipeline.Pipeline{
		Engine:  eng,
		Codec:   cdc,
		Schema:  sch,
		Journal: st,
		IDs:     pipeline.NewFixedGenerator(scenario.runID()),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		Timeout: scenario.timeout(),
	}

	result := NewResult()
	res, runErr := p.Run(ctx, req)
	if runErr != nil {
		var pe *pipeline.Error
		if !errors.As(runErr, &pe) {
			return nil, runErr
		}
		result.ErrorKind = pe.Kind()
		result.ErrorCode = pe.Code
		result.ErrorMessage = pe.Error()
	} else {
		result.Output = res.Output
	}

	rec, err := st.ReadRun(ctx, scenario.runID())
	if err != nil {
		return nil, fmt.Errorf("failed to read journaled run: %w", err)
	}
	result.Run = rec

	for _, msg := range checkExpect(&scenario.Expect, result) {
		result.AddError(msg)
	}
	return result, nil
}

func (s *Scenario) request() (pipeline.Request, error) {
	req := pipeline.Request{
		ModulePath: s.resolve(s.Module),
		Operation:  s.operation(),
	}
	if s.InputFile != "" {
		req.InputPath = s.resolve(s.InputFile)
		return req, nil
	}

	data, err := value.Marshal(s.input)
	if err != nil {
		return req, fmt.Errorf("failed to marshal input: %w", err)
	}
	req.InputPath = s.Name + ".input"
	req.Input = data
	return req, nil
}

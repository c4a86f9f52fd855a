package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/schema"
	"github.com/roach88/wasmpipe/internal/store"
	"github.com/roach88/wasmpipe/internal/value"
)

// ReplayStatus is the verdict for one replayed run.
type ReplayStatus string

const (
	// ReplayMatch: same output digest, or the same error code.
	ReplayMatch ReplayStatus = "match"
	// ReplayMismatch: the outcome differs from the journal.
	ReplayMismatch ReplayStatus = "mismatch"
	// ReplaySkipped: the run never produced a decodable input, or the schema
	// it was checked against can no longer be loaded.
	ReplaySkipped ReplayStatus = "skipped"
)

// ReplayOutcome compares a journaled run with a fresh execution.
type ReplayOutcome struct {
	RunID         string       `json:"run_id"`
	Seq           int64        `json:"seq"`
	Status        ReplayStatus `json:"status"`
	WantDigest    string       `json:"want_digest,omitempty"`
	GotDigest     string       `json:"got_digest,omitempty"`
	WantCode      string       `json:"want_code,omitempty"`
	GotCode       string       `json:"got_code,omitempty"`
	ModuleChanged bool         `json:"module_changed,omitempty"`
	Detail        string       `json:"detail,omitempty"`
}

// Replay re-executes a journaled run with the codec and schema it was
// recorded with and compares the outcome. The replay itself is not journaled.
func (p *Pipeline) Replay(ctx context.Context, run store.Run) (ReplayOutcome, error) {
	outcome := ReplayOutcome{
		RunID:      run.ID,
		Seq:        run.Seq,
		WantDigest: run.OutputDigest,
		WantCode:   run.ErrorCode,
	}

	if run.Input == nil {
		outcome.Status = ReplaySkipped
		outcome.Detail = "run has no recorded input"
		return outcome, nil
	}

	c, err := codec.Get(run.Codec)
	if err != nil {
		return outcome, fmt.Errorf("replay %s: %w", run.ID, err)
	}
	input, err := value.Marshal(run.Input)
	if err != nil {
		return outcome, fmt.Errorf("replay %s: %w", run.ID, err)
	}

	replayer := *p
	replayer.Codec = c
	replayer.Schema = nil
	if run.SchemaPath != "" {
		if p.Schema != nil && p.Schema.Path() == run.SchemaPath {
			replayer.Schema = p.Schema
		} else if replayer.Schema, err = schema.Load(run.SchemaPath); err != nil {
			outcome.Status = ReplaySkipped
			outcome.Detail = fmt.Sprintf("schema unavailable: %v", err)
			return outcome, nil
		}
	}
	replayer.Journal = nil
	replayer.IDs = NewFixedGenerator(run.ID)

	res, err := replayer.Run(ctx, Request{
		ModulePath: run.ModulePath,
		Operation:  run.Operation,
		InputPath:  "journal:" + run.ID,
		Input:      input,
	})

	if err != nil {
		var pe *Error
		if !errors.As(err, &pe) {
			return outcome, err
		}
		outcome.GotCode = pe.Code
		outcome.Detail = pe.Error()
	} else {
		outcome.GotDigest, _ = value.Digest(res.Output)
		outcome.ModuleChanged = run.ModuleDigest != "" && run.ModuleDigest != res.ModuleDigest
	}

	if outcome.GotCode == outcome.WantCode && outcome.GotDigest == outcome.WantDigest {
		outcome.Status = ReplayMatch
	} else {
		outcome.Status = ReplayMismatch
	}
	return outcome, nil
}

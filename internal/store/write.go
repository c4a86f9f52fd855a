package store

import (
	"context"
	"fmt"

	"github.com/roach88/wasmpipe/internal/value"
)

// Run is one journaled pipeline execution.
type Run struct {
	ID           string
	Seq          int64 // assigned by WriteRun
	ModulePath   string
	ModuleDigest string // empty when the module never loaded
	Engine       string
	Codec        string
	Operation    string
	SchemaPath   string      // empty when no schema was applied
	Input        value.Value // nil when the input never decoded
	Output       value.Value // nil unless the run succeeded
	OutputDigest string
	ErrorCode    string
	ErrorMessage string
}

// Succeeded reports whether the run produced an output.
func (r Run) Succeeded() bool { return r.ErrorCode == "" }

// WriteRun appends a run to the journal and returns the seq it was stored
// under.
//
// seq is MAX(seq)+1 computed in the same transaction as the insert. Uses
// ON CONFLICT(id) DO NOTHING for idempotency: a duplicate ID is ignored,
// inserted is false and the existing seq is returned.
func (s *Store) WriteRun(ctx context.Context, run Run) (seq int64, inserted bool, err error) {
	inputJSON, err := marshalDocument(run.Input)
	if err != nil {
		return 0, false, fmt.Errorf("write run: input: %w", err)
	}
	outputJSON, err := marshalDocument(run.Output)
	if err != nil {
		return 0, false, fmt.Errorf("write run: output: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return 0, false, fmt.Errorf("write run: next seq: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, module_path, module_digest, engine, codec, operation,
		 schema_path, input, output, output_digest, error_code, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		seq,
		run.ModulePath,
		run.ModuleDigest,
		run.Engine,
		run.Codec,
		run.Operation,
		run.SchemaPath,
		inputJSON,
		outputJSON,
		run.OutputDigest,
		run.ErrorCode,
		run.ErrorMessage,
	)
	if err != nil {
		return 0, false, fmt.Errorf("write run: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("write run: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Conflict - run already journaled, report its seq
		if err := tx.QueryRowContext(ctx, `SELECT seq FROM runs WHERE id = ?`, run.ID).Scan(&seq); err != nil {
			return 0, false, fmt.Errorf("write run: select existing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("write run: commit: %w", err)
	}

	return seq, rowsAffected > 0, nil
}

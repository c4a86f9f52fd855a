package store

import (
	"context"
	"database/sql"
	"fmt"
)

const runColumns = `id, seq, module_path, module_digest, engine, codec, operation,
	schema_path, input, output, output_digest, error_code, error_message`

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns journaled runs in seq order. A limit of zero or less
// returns all runs; otherwise the most recent limit runs are returned, still
// in ascending order.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY seq ASC, id COLLATE BINARY ASC`
	args := []any{}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT ` + runColumns + ` FROM runs ORDER BY seq DESC, id COLLATE BINARY DESC LIMIT ?
		) ORDER BY seq ASC, id COLLATE BINARY ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// LastSeq returns the highest seq in the journal, or 0 if it is empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var inputJSON, outputJSON sql.NullString

	err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.ModulePath,
		&run.ModuleDigest,
		&run.Engine,
		&run.Codec,
		&run.Operation,
		&run.SchemaPath,
		&inputJSON,
		&outputJSON,
		&run.OutputDigest,
		&run.ErrorCode,
		&run.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	if run.Input, err = unmarshalDocument(inputJSON); err != nil {
		return Run{}, fmt.Errorf("scan run %s: input: %w", run.ID, err)
	}
	if run.Output, err = unmarshalDocument(outputJSON); err != nil {
		return Run{}, fmt.Errorf("scan run %s: output: %w", run.ID, err)
	}
	return run, nil
}

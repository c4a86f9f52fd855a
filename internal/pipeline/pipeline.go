// Package pipeline drives one run: read the document, decode it, check it,
// encode it, load the module, invoke the operation, decode and check the
// result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/schema"
	"github.com/roach88/wasmpipe/internal/store"
	"github.com/roach88/wasmpipe/internal/value"
	"github.com/roach88/wasmpipe/internal/wasm"
)

// Journal records runs. *store.Store implements it.
type Journal interface {
	WriteRun(ctx context.Context, run store.Run) (seq int64, inserted bool, err error)
}

// Pipeline holds the collaborators shared by runs. Engine and Codec are
// required; the rest are optional.
type Pipeline struct {
	Engine  wasm.Engine
	Codec   codec.Codec
	Schema  *schema.Schema
	Journal Journal
	IDs     IDGenerator
	Logger  *slog.Logger

	// Timeout bounds the invocation. Zero means no limit.
	Timeout time.Duration
}

// Request is one invocation.
type Request struct {
	ModulePath string
	Operation  string

	// InputPath is read unless Input is set. "-" names stdin, whose content
	// the caller passes in Input.
	InputPath string
	Input     []byte
}

// Result is a successful run.
type Result struct {
	RunID        string
	Seq          int64 // journal position, 0 when not journaled
	Output       value.Value
	ModuleDigest string
	InputBytes   int // encoded payload size
	OutputBytes  int // raw result size
}

// Run executes the stages in order. The first failure stops the run and is
// returned as *Error. The module is closed before Run returns.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	rec := store.Run{
		ID:         p.ids().Generate(),
		ModulePath: req.ModulePath,
		Engine:     p.Engine.Name(),
		Codec:      p.Codec.Name(),
		Operation:  req.Operation,
	}
	if p.Schema != nil {
		rec.SchemaPath = p.Schema.Path()
	}
	log := p.logger().With("run", rec.ID)

	res, err := p.run(ctx, log, req, &rec)
	if err != nil {
		var pe *Error
		if !errors.As(err, &pe) {
			pe = &Error{Stage: StageRead, Code: CodeGeneric, Err: err}
		}
		rec.ErrorCode = pe.Code
		rec.ErrorMessage = pe.Error()
		log.Debug("run failed", "stage", pe.Stage, "code", pe.Code, "error", pe.Err)
		p.record(ctx, log, rec)
		return nil, pe
	}

	res.RunID = rec.ID
	res.Seq = p.record(ctx, log, rec)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, req Request, rec *store.Run) (*Result, error) {
	data := req.Input
	if data == nil {
		var err error
		data, err = os.ReadFile(req.InputPath)
		if err != nil {
			return nil, stageError(StageRead, err)
		}
	}
	log.Debug("input read", "path", req.InputPath, "bytes", len(data))

	input, err := value.Decode(data)
	if err != nil {
		return nil, stageError(StageDecode, err)
	}
	rec.Input = input

	if p.Schema != nil {
		if err := p.Schema.ValidateInput(input); err != nil {
			return nil, stageError(StageValidate, err)
		}
		log.Debug("input validated", "schema", p.Schema.Path())
	}

	payload, err := p.Codec.Encode(input)
	if err != nil {
		return nil, stageError(StageEncode, err)
	}
	log.Debug("input encoded", "codec", p.Codec.Name(), "bytes", len(payload))

	mod, err := wasm.Open(ctx, p.Engine, req.ModulePath)
	if err != nil {
		return nil, stageError(StageLoad, err)
	}
	defer func() {
		if err := mod.Close(ctx); err != nil {
			log.Warn("close module", "module", req.ModulePath, "error", err)
		}
	}()
	rec.ModuleDigest = mod.Digest()
	log.Debug("module loaded", "module", req.ModulePath, "engine", p.Engine.Name(), "digest", mod.Digest())

	invokeCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	out, err := mod.Invoke(invokeCtx, req.Operation, payload)
	if err != nil {
		return nil, stageError(StageInvoke, err)
	}
	log.Debug("operation returned", "operation", req.Operation, "bytes", len(out))

	output, err := p.Codec.Decode(out)
	if err != nil {
		return nil, stageError(StageDecodeResult, err)
	}

	if p.Schema != nil {
		if err := p.Schema.ValidateOutput(output); err != nil {
			return nil, stageError(StageValidateResult, err)
		}
	}

	digest, err := value.Digest(output)
	if err != nil {
		return nil, stageError(StageDecodeResult, fmt.Errorf("digest output: %w", err))
	}
	rec.Output = output
	rec.OutputDigest = digest

	return &Result{
		Output:       output,
		ModuleDigest: mod.Digest(),
		InputBytes:   len(payload),
		OutputBytes:  len(out),
	}, nil
}

// record journals the run. Journal failures are logged and never change the
// outcome of the run.
func (p *Pipeline) record(ctx context.Context, log *slog.Logger, rec store.Run) int64 {
	if p.Journal == nil {
		return 0
	}
	seq, inserted, err := p.Journal.WriteRun(ctx, rec)
	if err != nil {
		log.Error("journal write failed", "error", err)
		return 0
	}
	log.Info("run journaled", "seq", seq, "inserted", inserted, "code", rec.ErrorCode)
	return seq
}

func (p *Pipeline) ids() IDGenerator {
	if p.IDs == nil {
		return UUIDv7Generator{}
	}
	return p.IDs
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

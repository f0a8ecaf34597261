package engine

import "context"

// Strategy implements the four-phase lifecycle for one node type.
//
// The engine guarantees the phase order Preprocess, Execute, Postprocess,
// Finalize within one run; Execute and Postprocess are skipped when
// Preprocess fails, Finalize always runs. Finalize returns the result it was
// given, with metadata stamped; it must never change the outcome status.
type Strategy interface {
	Type() string
	Preprocess(ctx context.Context, ec *ExecutionContext) *ExecutionResult
	Execute(ctx context.Context, ec *ExecutionContext) *ExecutionResult
	Postprocess(ctx context.Context, ec *ExecutionContext, executeResult *ExecutionResult) *ExecutionResult
	Finalize(ctx context.Context, ec *ExecutionContext, result *ExecutionResult) *ExecutionResult
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/resilience"
)

const tracerName = "workflow-engine"

// Engine drives one full node run: strategy resolution, the four lifecycle
// phases in order, metric recording, and a retry-wrapped entry point. No
// error escapes ExecuteNode as a Go error; every outcome is an
// ExecutionResult.
type Engine struct {
	registry *Registry
	metrics  Collector
	logger   logger.Logger
	tracer   trace.Tracer
}

func NewEngine(registry *Registry, metrics Collector, log logger.Logger) *Engine {
	if metrics == nil {
		metrics = NopCollector{}
	}
	return &Engine{
		registry: registry,
		metrics:  metrics,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}
}

// ExecuteNode runs the node described by ec through its strategy's
// lifecycle. Finalize runs exactly once regardless of which earlier phase
// failed; finalize failures never overwrite the execution result.
func (e *Engine) ExecuteNode(ctx context.Context, ec *ExecutionContext) *ExecutionResult {
	start := time.Now()
	e.metrics.IncrementAttempts(ec.NodeType)

	ctx, span := e.tracer.Start(ctx, "engine.execute_node", trace.WithAttributes(
		attribute.String("node.type", ec.NodeType),
		attribute.String("node.id", ec.NodeID),
		attribute.String("execution.id", ec.ExecutionID),
	))
	defer span.End()

	log := e.logger.With("nodeId", ec.NodeID, "executionId", ec.ExecutionID, "nodeType", ec.NodeType)

	strategy, ok := e.registry.Get(ec.NodeType)
	if !ok {
		result := FailedResult(fmt.Sprintf("No strategy found for node type '%s'", ec.NodeType), nil, 0)
		log.Error("Unknown node type", "error", result.ErrorMessage)
		span.SetStatus(codes.Error, result.ErrorMessage)
		e.metrics.RecordExecution(ec.NodeType, result.Status, time.Since(start))
		return result
	}

	// Cheap fast path: do not enter the lifecycle when the caller has
	// already given up.
	if ctx.Err() != nil {
		result := CancelledResult(0)
		span.SetStatus(codes.Error, "cancelled before preprocess")
		e.metrics.RecordExecution(ec.NodeType, result.Status, time.Since(start))
		return result
	}

	result := e.runLifecycle(ctx, span, log, strategy, ec)

	e.metrics.RecordExecution(ec.NodeType, result.Status, time.Since(start))
	if result.IsSuccess() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, result.ErrorMessage)
	}

	log.Info("Node execution finished", "status", result.Status, "duration", result.Duration)
	return result
}

func (e *Engine) runLifecycle(ctx context.Context, span trace.Span, log logger.Logger, strategy Strategy, ec *ExecutionContext) *ExecutionResult {
	result := e.runPhase(ctx, log, ec, "preprocess", func() *ExecutionResult {
		return strategy.Preprocess(ctx, ec)
	})
	span.AddEvent("preprocess", trace.WithAttributes(attribute.String("status", string(result.Status))))

	if result.IsSuccess() {
		result = e.runPhase(ctx, log, ec, "execute", func() *ExecutionResult {
			return strategy.Execute(ctx, ec)
		})
		span.AddEvent("execute", trace.WithAttributes(attribute.String("status", string(result.Status))))

		// Postprocess is never skipped once execute has run; it passes
		// failed results through unchanged.
		executeResult := result
		result = e.runPhase(ctx, log, ec, "postprocess", func() *ExecutionResult {
			return strategy.Postprocess(ctx, ec, executeResult)
		})
		span.AddEvent("postprocess", trace.WithAttributes(attribute.String("status", string(result.Status))))
	}

	// Finalize always runs; a finalize panic must not mask the real
	// outcome, so the pre-finalize result is kept on failure.
	finalized := e.runFinalize(ctx, log, strategy, ec, result)
	span.AddEvent("finalize")

	return finalized
}

// runPhase executes one lifecycle phase, converting a panic into a Failed
// result tagged with the recovered value's type for metrics.
func (e *Engine) runPhase(ctx context.Context, log logger.Logger, ec *ExecutionContext, phase string, fn func() *ExecutionResult) (result *ExecutionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			log.Error("Phase panicked", "phase", phase, "error", err)
			e.metrics.RecordExecutionError(ec.NodeType, fmt.Sprintf("%T", r))
			result = FailedResult(fmt.Sprintf("%s failed: %v", phase, err), err, time.Since(start))
		}
	}()

	result = fn()
	if result == nil {
		result = FailedResult(fmt.Sprintf("%s returned no result", phase), nil, time.Since(start))
	}
	return result
}

func (e *Engine) runFinalize(ctx context.Context, log logger.Logger, strategy Strategy, ec *ExecutionContext, result *ExecutionResult) (finalized *ExecutionResult) {
	finalized = result
	defer func() {
		if r := recover(); r != nil {
			log.Error("Finalize panicked", "error", fmt.Sprintf("%v", r))
			finalized = result
		}
	}()

	if out := strategy.Finalize(ctx, ec, result); out != nil {
		// Finalize may stamp metadata but never change the outcome.
		if out.Status == result.Status {
			finalized = out
		} else {
			log.Warn("Finalize attempted to change result status; keeping original",
				"original", result.Status, "attempted", out.Status)
		}
	}
	return finalized
}

// ExecuteNodeWithRetry calls ExecuteNode and retries transient failures with
// a fixed delay between attempts. Cancellation and fatal failures return
// immediately; after maxRetries the last failed result is returned.
func (e *Engine) ExecuteNodeWithRetry(ctx context.Context, ec *ExecutionContext, maxRetries int, retryDelay time.Duration) *ExecutionResult {
	var result *ExecutionResult

	for attempt := 0; ; attempt++ {
		result = e.ExecuteNode(ctx, ec)

		if result.IsSuccess() || result.Status == StatusCancelled {
			return result
		}
		if !isTransientResult(result) {
			return result
		}
		if attempt >= maxRetries {
			return result
		}

		e.metrics.RecordRetryAttempt(ec.NodeType, attempt+1)
		e.logger.Info("Retrying node execution",
			"nodeId", ec.NodeID,
			"nodeType", ec.NodeType,
			"attempt", attempt+1,
			"delay", retryDelay,
		)

		select {
		case <-ctx.Done():
			return CancelledResult(result.Duration)
		case <-time.After(retryDelay):
		}
	}
}

// isTransientResult reports whether a failed result is worth re-running the
// whole lifecycle for. Timeouts count as transient at this layer.
func isTransientResult(result *ExecutionResult) bool {
	if result.Status == StatusTimedOut {
		return true
	}
	if result.Status != StatusFailed {
		return false
	}
	err := result.Err
	if err == nil {
		err = errors.New(result.ErrorMessage)
	}
	return resilience.IsTransient(err)
}

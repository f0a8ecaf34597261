package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/events"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/resilience"
)

// Hooks are the extension points a concrete strategy plugs into the shared
// lifecycle. Every hook is optional; a nil hook is a no-op.
type Hooks struct {
	// ValidateInputs produces blocking errors and advisory warnings before
	// anything side-effecting happens. Execute never runs on invalid input.
	ValidateInputs func(ctx context.Context, ec *engine.ExecutionContext) *engine.ValidationResult

	// SetupContext performs side-effecting preparation: probing a database
	// connection, rendering an email template.
	SetupContext func(ctx context.Context, ec *engine.ExecutionContext) error

	// TransformOutput reshapes a successful execute payload.
	TransformOutput func(ctx context.Context, ec *engine.ExecutionContext, output interface{}) (interface{}, error)

	// ValidateOutput is advisory only: it produces warnings and never turns
	// a success into a failure.
	ValidateOutput func(ctx context.Context, ec *engine.ExecutionContext, output interface{}) *engine.ValidationResult

	// CleanupResources releases connections and handles.
	CleanupResources func(ctx context.Context, ec *engine.ExecutionContext) error

	// PersistState runs after the result metadata has been stamped.
	PersistState func(ctx context.Context, ec *engine.ExecutionContext, result *engine.ExecutionResult) error

	// TriggerCompletion overrides the default completion event publishing.
	TriggerCompletion func(ctx context.Context, ec *engine.ExecutionContext, result *engine.ExecutionResult) error
}

// Lifecycle wires a hook bundle into the Preprocess/Postprocess/Finalize
// phases of the strategy contract and carries the retry policy and circuit
// breaker every strategy applies around its external call. Concrete
// strategies embed it and implement Execute.
type Lifecycle struct {
	nodeType string
	log      logger.Logger
	metrics  engine.Collector
	bus      events.EventBus
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	hooks    Hooks
}

type Option func(*Lifecycle)

func WithEventBus(bus events.EventBus) Option {
	return func(l *Lifecycle) { l.bus = bus }
}

func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(l *Lifecycle) { l.retry = cfg }
}

func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(l *Lifecycle) { l.breaker = resilience.NewCircuitBreaker(cfg) }
}

func NewLifecycle(nodeType string, log logger.Logger, metrics engine.Collector, hooks Hooks, opts ...Option) *Lifecycle {
	if metrics == nil {
		metrics = engine.NopCollector{}
	}
	l := &Lifecycle{
		nodeType: nodeType,
		log:      log,
		metrics:  metrics,
		retry:    resilience.DefaultRetryConfig(),
		breaker:  resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(nodeType)),
		hooks:    hooks,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lifecycle) Type() string {
	return l.nodeType
}

func (l *Lifecycle) Preprocess(ctx context.Context, ec *engine.ExecutionContext) *engine.ExecutionResult {
	start := time.Now()

	if l.hooks.ValidateInputs != nil {
		vr := l.hooks.ValidateInputs(ctx, ec)
		if vr != nil {
			for _, warning := range vr.Warnings {
				l.log.Warn("Input validation warning", "nodeId", ec.NodeID, "warning", warning)
			}
			if !vr.Valid() {
				return engine.FailedResult(vr.ErrorMessage(), nil, time.Since(start))
			}
		}
	}

	if l.hooks.SetupContext != nil {
		if err := l.hooks.SetupContext(ctx, ec); err != nil {
			l.metrics.RecordExecutionError(l.nodeType, errorType(err))
			return engine.FailedResult(fmt.Sprintf("setup failed: %v", err), err, time.Since(start))
		}
	}

	return engine.CompletedResult(nil, time.Since(start))
}

func (l *Lifecycle) Postprocess(ctx context.Context, ec *engine.ExecutionContext, executeResult *engine.ExecutionResult) *engine.ExecutionResult {
	// Failed results pass through unchanged; no transformation is attempted.
	if executeResult == nil || !executeResult.IsSuccess() {
		return executeResult
	}

	output := executeResult.OutputData

	if l.hooks.TransformOutput != nil {
		transformed, err := l.hooks.TransformOutput(ctx, ec, output)
		if err != nil {
			l.metrics.RecordExecutionError(l.nodeType, errorType(err))
			return engine.FailedResult(fmt.Sprintf("output transformation failed: %v", err), err, executeResult.Duration)
		}
		output = transformed
	}

	if l.hooks.ValidateOutput != nil {
		if vr := l.hooks.ValidateOutput(ctx, ec, output); vr != nil {
			// Output validation never demotes a success; everything it
			// reports is logged as a warning.
			for _, warning := range append(vr.Errors, vr.Warnings...) {
				l.log.Warn("Output validation warning", "nodeId", ec.NodeID, "warning", warning)
			}
		}
	}

	return executeResult.WithOutputData(output)
}

func (l *Lifecycle) Finalize(ctx context.Context, ec *engine.ExecutionContext, result *engine.ExecutionResult) *engine.ExecutionResult {
	if result == nil {
		result = engine.FailedResult("no result produced", nil, 0)
	}

	l.runHook(ec, "cleanup_resources", func() error {
		if l.hooks.CleanupResources != nil {
			return l.hooks.CleanupResources(ctx, ec)
		}
		return nil
	})

	stamped := result.
		WithMetadata("ExecutedAt", time.Now().UTC()).
		WithMetadata("NodeType", ec.NodeType).
		WithMetadata("ExecutionId", ec.ExecutionID)

	l.runHook(ec, "persist_state", func() error {
		if l.hooks.PersistState != nil {
			return l.hooks.PersistState(ctx, ec, stamped)
		}
		return nil
	})

	l.runHook(ec, "trigger_completion", func() error {
		if l.hooks.TriggerCompletion != nil {
			return l.hooks.TriggerCompletion(ctx, ec, stamped)
		}
		return l.publishCompletion(ctx, ec, stamped)
	})

	return stamped
}

// runHook isolates one finalize hook: its failure or panic is logged and
// must not prevent the remaining hooks from running.
func (l *Lifecycle) runHook(ec *engine.ExecutionContext, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Finalize hook panicked", "hook", name, "nodeId", ec.NodeID, "error", fmt.Sprintf("%v", r))
		}
	}()

	if err := fn(); err != nil {
		l.log.Error("Finalize hook failed", "hook", name, "nodeId", ec.NodeID, "error", err)
	}
}

func (l *Lifecycle) publishCompletion(ctx context.Context, ec *engine.ExecutionContext, result *engine.ExecutionResult) error {
	l.log.Info("Node execution completed",
		"nodeId", ec.NodeID,
		"executionId", ec.ExecutionID,
		"status", result.Status,
	)
	if l.bus == nil {
		return nil
	}

	eventType := events.NodeExecutionCompleted
	if !result.IsSuccess() {
		eventType = events.NodeExecutionFailed
	}

	event := events.NewEventBuilder(eventType).
		WithAggregateID(ec.ExecutionID).
		WithAggregateType("node_execution").
		WithPayload("nodeId", ec.NodeID).
		WithPayload("workflowId", ec.WorkflowID).
		WithPayload("nodeType", ec.NodeType).
		WithPayload("status", string(result.Status)).
		Build()

	return l.bus.Publish(ctx, event)
}

// RunProtected wraps the strategy's external call in the retry policy and
// circuit breaker, under a deadline derived from the strategy's configured
// timeout linked to the caller's context.
func (l *Lifecycle) RunProtected(ctx context.Context, timeout time.Duration, call func(context.Context) (interface{}, error)) (interface{}, time.Duration, error) {
	start := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := resilience.RetryWithResult(execCtx, l.retry, func() (interface{}, error) {
		return l.breaker.Execute(execCtx, call)
	})
	return out, time.Since(start), err
}

// FailureResult classifies an execute error into Cancelled, TimedOut or
// Failed, and records the error-type metric. Caller-driven cancellation is
// distinguished from the strategy's own deadline.
func (l *Lifecycle) FailureResult(parent context.Context, ec *engine.ExecutionContext, err error, duration time.Duration) *engine.ExecutionResult {
	l.metrics.RecordExecutionError(l.nodeType, errorType(err))

	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return engine.CancelledResult(duration)
	case errors.Is(err, context.DeadlineExceeded):
		return engine.TimedOutResult(fmt.Sprintf("%s timed out after %s", l.nodeType, duration.Round(time.Millisecond)), err, duration)
	default:
		return engine.FailedResult("", err, duration)
	}
}

func (l *Lifecycle) Logger() logger.Logger {
	return l.log
}

func errorType(err error) string {
	if err == nil {
		return "unknown"
	}
	return fmt.Sprintf("%T", err)
}

// configFrom extracts and decodes the strategy configuration registered
// under key. API callers supply maps; in-process callers supply the typed
// struct directly. Absence is an error, not a default.
func configFrom[T any](ec *engine.ExecutionContext, key string) (*T, error) {
	raw, ok := ec.Config(key)
	if !ok {
		return nil, fmt.Errorf("missing configuration '%s'", key)
	}

	switch v := raw.(type) {
	case *T:
		return v, nil
	case T:
		return &v, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration '%s': %w", key, err)
	}
	var cfg T
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration '%s': %w", key, err)
	}
	return &cfg, nil
}

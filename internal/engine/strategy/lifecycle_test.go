package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/events"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/resilience"
)

// fastRetryConfig keeps retry tests quick: no backoff sleeps worth noticing.
func fastRetryConfig(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:       attempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		ShouldRetry:       resilience.IsTransient,
	}
}

func TestLifecycle_PreprocessBlocksOnValidationErrors(t *testing.T) {
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{
		ValidateInputs: func(ctx context.Context, ec *engine.ExecutionContext) *engine.ValidationResult {
			return engine.NewValidationResult().
				AddError("first problem").
				AddError("second problem").
				AddWarning("just advisory")
		},
	})

	result := l.Preprocess(context.Background(), engine.NewContextForNode("test.node"))
	require.Equal(t, engine.StatusFailed, result.Status)
	assert.Equal(t, "first problem; second problem", result.ErrorMessage)
}

func TestLifecycle_PreprocessWarningsDoNotBlock(t *testing.T) {
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{
		ValidateInputs: func(ctx context.Context, ec *engine.ExecutionContext) *engine.ValidationResult {
			return engine.NewValidationResult().AddWarning("heads up")
		},
	})

	result := l.Preprocess(context.Background(), engine.NewContextForNode("test.node"))
	assert.True(t, result.IsSuccess())
}

func TestLifecycle_SetupFailureFailsPreprocess(t *testing.T) {
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{
		SetupContext: func(ctx context.Context, ec *engine.ExecutionContext) error {
			return errors.New("could not reach dependency")
		},
	})

	result := l.Preprocess(context.Background(), engine.NewContextForNode("test.node"))
	require.Equal(t, engine.StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "could not reach dependency")
}

func TestLifecycle_PostprocessPassesFailuresThrough(t *testing.T) {
	transformCalled := false
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{
		TransformOutput: func(ctx context.Context, ec *engine.ExecutionContext, output interface{}) (interface{}, error) {
			transformCalled = true
			return output, nil
		},
	})

	failed := engine.FailedResult("upstream exploded", nil, 0)
	result := l.Postprocess(context.Background(), engine.NewContextForNode("test.node"), failed)

	assert.Same(t, failed, result)
	assert.False(t, transformCalled)
}

func TestLifecycle_TransformErrorFailsResult(t *testing.T) {
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{
		TransformOutput: func(ctx context.Context, ec *engine.ExecutionContext, output interface{}) (interface{}, error) {
			return nil, errors.New("bad shape")
		},
	})

	result := l.Postprocess(context.Background(), engine.NewContextForNode("test.node"), engine.CompletedResult("raw", 0))
	require.Equal(t, engine.StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "output transformation failed")
}

func TestLifecycle_OutputValidationNeverDemotes(t *testing.T) {
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{
		ValidateOutput: func(ctx context.Context, ec *engine.ExecutionContext, output interface{}) *engine.ValidationResult {
			return engine.NewValidationResult().AddError("schema mismatch")
		},
	})

	result := l.Postprocess(context.Background(), engine.NewContextForNode("test.node"), engine.CompletedResult("out", 0))
	assert.True(t, result.IsSuccess())
}

func TestLifecycle_FinalizeStampsMetadataAndKeepsStatus(t *testing.T) {
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{})
	ec := engine.NewContextForNode("test.node")

	result := l.Finalize(context.Background(), ec, engine.CompletedResult("out", time.Second))
	require.True(t, result.IsSuccess())
	assert.Equal(t, "test.node", result.Metadata["NodeType"])
	assert.Equal(t, ec.ExecutionID, result.Metadata["ExecutionId"])
	assert.NotNil(t, result.Metadata["ExecutedAt"])
}

func TestLifecycle_FinalizeHookFailuresDoNotChangeOutcome(t *testing.T) {
	persisted := false
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{
		CleanupResources: func(ctx context.Context, ec *engine.ExecutionContext) error {
			panic("cleanup blew up")
		},
		PersistState: func(ctx context.Context, ec *engine.ExecutionContext, result *engine.ExecutionResult) error {
			persisted = true
			return errors.New("store unavailable")
		},
	})

	result := l.Finalize(context.Background(), engine.NewContextForNode("test.node"), engine.CompletedResult("out", 0))
	assert.True(t, result.IsSuccess())
	assert.True(t, persisted, "later hooks still run after an earlier hook fails")
}

func TestLifecycle_FinalizePublishesCompletionEvent(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	var received []events.Event
	require.NoError(t, bus.Subscribe(events.NodeExecutionCompleted, func(ctx context.Context, e events.Event) error {
		received = append(received, e)
		return nil
	}))

	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{}, WithEventBus(bus))
	ec := engine.NewContextForNode("test.node")

	l.Finalize(context.Background(), ec, engine.CompletedResult("out", 0))

	require.Len(t, received, 1)
	assert.Equal(t, ec.ExecutionID, received[0].AggregateID)
	assert.Equal(t, ec.NodeID, received[0].Payload["nodeId"])
}

func TestLifecycle_FailureResultClassification(t *testing.T) {
	l := NewLifecycle("test.node", logger.NewNop(), engine.NopCollector{}, Hooks{})
	ec := engine.NewContextForNode("test.node")

	t.Run("cancelled parent wins", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		result := l.FailureResult(ctx, ec, context.Canceled, time.Millisecond)
		assert.Equal(t, engine.StatusCancelled, result.Status)
	})

	t.Run("deadline becomes timed out", func(t *testing.T) {
		result := l.FailureResult(context.Background(), ec, context.DeadlineExceeded, time.Millisecond)
		assert.Equal(t, engine.StatusTimedOut, result.Status)
	})

	t.Run("anything else fails", func(t *testing.T) {
		result := l.FailureResult(context.Background(), ec, errors.New("boom"), time.Millisecond)
		assert.Equal(t, engine.StatusFailed, result.Status)
	})
}

func TestConfigFromAcceptsTypedAndMapPayloads(t *testing.T) {
	type sample struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("typed value", func(t *testing.T) {
		ec := engine.NewContextForNode("test.node").WithConfiguration("Cfg", sample{Name: "a", Count: 2})
		cfg, err := configFrom[sample](ec, "Cfg")
		require.NoError(t, err)
		assert.Equal(t, "a", cfg.Name)
	})

	t.Run("typed pointer", func(t *testing.T) {
		ec := engine.NewContextForNode("test.node").WithConfiguration("Cfg", &sample{Count: 3})
		cfg, err := configFrom[sample](ec, "Cfg")
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Count)
	})

	t.Run("map payload", func(t *testing.T) {
		ec := engine.NewContextForNode("test.node").WithConfiguration("Cfg", map[string]interface{}{"name": "b", "count": 5})
		cfg, err := configFrom[sample](ec, "Cfg")
		require.NoError(t, err)
		assert.Equal(t, "b", cfg.Name)
		assert.Equal(t, 5, cfg.Count)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := configFrom[sample](engine.NewContextForNode("test.node"), "Cfg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing configuration 'Cfg'")
	})
}

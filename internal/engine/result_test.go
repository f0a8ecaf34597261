package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionResult_Constructors(t *testing.T) {
	completed := CompletedResult("out", time.Second)
	assert.True(t, completed.IsSuccess())
	assert.Equal(t, "out", completed.OutputData)

	err := errors.New("boom")
	failed := FailedResult("", err, 0)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.ErrorMessage, "message falls back to the error text")

	cancelled := CancelledResult(time.Millisecond)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.False(t, cancelled.IsSuccess())

	timedOut := TimedOutResult("", nil, 0)
	assert.Equal(t, StatusTimedOut, timedOut.Status)
	assert.NotEmpty(t, timedOut.ErrorMessage)

	skipped := SkippedResult("condition not met")
	assert.Equal(t, StatusSkipped, skipped.Status)
}

func TestExecutionResult_WithOutputDataLeavesOriginal(t *testing.T) {
	original := CompletedResult("before", time.Second)
	modified := original.WithOutputData("after")

	assert.Equal(t, "before", original.OutputData)
	assert.Equal(t, "after", modified.OutputData)
	assert.Equal(t, original.Duration, modified.Duration)
}

func TestExecutionResult_WithMetadataCopiesMap(t *testing.T) {
	original := CompletedResult(nil, 0).WithMetadata("a", 1)
	modified := original.WithMetadata("b", 2)

	require.Len(t, original.Metadata, 1)
	require.Len(t, modified.Metadata, 2)
	assert.Equal(t, 1, modified.Metadata["a"])

	// Mutating the copy's map never leaks back.
	modified.Metadata["a"] = 99
	assert.Equal(t, 1, original.Metadata["a"])
}

func TestExecutionResult_WithDuration(t *testing.T) {
	original := CompletedResult(nil, time.Second)
	modified := original.WithDuration(2 * time.Second)

	assert.Equal(t, time.Second, original.Duration)
	assert.Equal(t, 2*time.Second, modified.Duration)
}

package engine

import (
	"time"
)

// Status is the terminal or intermediate state of a node execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusRetrying  Status = "retrying"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// ExecutionResult is the outcome of a phase or of a whole node run. Values
// are immutable: transformations return a copy. Metadata is append-only.
type ExecutionResult struct {
	Status       Status                 `json:"status"`
	OutputData   interface{}            `json:"output_data,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Err          error                  `json:"-"`
	Duration     time.Duration          `json:"duration"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// IsSuccess is true only for a completed result.
func (r *ExecutionResult) IsSuccess() bool {
	return r.Status == StatusCompleted
}

func CompletedResult(output interface{}, duration time.Duration) *ExecutionResult {
	return &ExecutionResult{
		Status:     StatusCompleted,
		OutputData: output,
		Duration:   duration,
	}
}

func FailedResult(message string, err error, duration time.Duration) *ExecutionResult {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &ExecutionResult{
		Status:       StatusFailed,
		ErrorMessage: message,
		Err:          err,
		Duration:     duration,
	}
}

func CancelledResult(duration time.Duration) *ExecutionResult {
	return &ExecutionResult{
		Status:       StatusCancelled,
		ErrorMessage: "execution cancelled",
		Duration:     duration,
	}
}

func TimedOutResult(message string, err error, duration time.Duration) *ExecutionResult {
	if message == "" {
		message = "execution timed out"
	}
	return &ExecutionResult{
		Status:       StatusTimedOut,
		ErrorMessage: message,
		Err:          err,
		Duration:     duration,
	}
}

func SkippedResult(reason string) *ExecutionResult {
	return &ExecutionResult{
		Status:       StatusSkipped,
		ErrorMessage: reason,
	}
}

// WithOutputData returns a copy carrying the given output payload.
func (r *ExecutionResult) WithOutputData(output interface{}) *ExecutionResult {
	clone := r.clone()
	clone.OutputData = output
	return clone
}

// WithMetadata returns a copy with the key/value appended to the metadata.
func (r *ExecutionResult) WithMetadata(key string, value interface{}) *ExecutionResult {
	clone := r.clone()
	if clone.Metadata == nil {
		clone.Metadata = make(map[string]interface{})
	}
	clone.Metadata[key] = value
	return clone
}

// WithDuration returns a copy with the duration replaced.
func (r *ExecutionResult) WithDuration(duration time.Duration) *ExecutionResult {
	clone := r.clone()
	clone.Duration = duration
	return clone
}

func (r *ExecutionResult) clone() *ExecutionResult {
	clone := *r
	if r.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

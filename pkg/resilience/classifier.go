package resilience

import (
	"context"
	"errors"
	"strings"
)

// transientPatterns covers connectivity failures and throttling responses
// from downstream dependencies. Matching is substring-based over the error
// text, same as the rest of the platform does for cross-service errors.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporary failure",
	"rate limit",
	"too many requests",
	"429",
	"503",
	"504",
	"network",
	"EOF",
	"broken pipe",
}

// IsTransient reports whether err is worth retrying. Deadline expiry counts
// as transient; caller-initiated cancellation never does.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

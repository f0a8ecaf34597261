package engine

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector receives execution metrics from the engine and the strategies.
type Collector interface {
	IncrementAttempts(nodeType string)
	RecordExecution(nodeType string, status Status, duration time.Duration)
	RecordExecutionError(nodeType string, errorType string)
	RecordRetryAttempt(nodeType string, attempt int)
}

// PrometheusCollector exports engine metrics through a prometheus registry.
type PrometheusCollector struct {
	attempts   *prometheus.CounterVec
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	retries    *prometheus.CounterVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_node_attempts_total",
			Help: "Total number of node execution attempts",
		}, []string{"node_type"}),
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_node_executions_total",
			Help: "Total number of node executions by type and status",
		}, []string{"node_type", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_node_duration_seconds",
			Help:    "Node execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"node_type"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_node_errors_total",
			Help: "Total number of node execution errors by error type",
		}, []string{"node_type", "error_type"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_node_retries_total",
			Help: "Total number of node retry attempts",
		}, []string{"node_type", "attempt"}),
	}
}

func (c *PrometheusCollector) IncrementAttempts(nodeType string) {
	c.attempts.WithLabelValues(nodeType).Inc()
}

func (c *PrometheusCollector) RecordExecution(nodeType string, status Status, duration time.Duration) {
	c.executions.WithLabelValues(nodeType, string(status)).Inc()
	c.duration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordExecutionError(nodeType string, errorType string) {
	c.errors.WithLabelValues(nodeType, errorType).Inc()
}

func (c *PrometheusCollector) RecordRetryAttempt(nodeType string, attempt int) {
	c.retries.WithLabelValues(nodeType, strconv.Itoa(attempt)).Inc()
}

// NopCollector discards all metrics.
type NopCollector struct{}

func (NopCollector) IncrementAttempts(string)                    {}
func (NopCollector) RecordExecution(string, Status, time.Duration) {}
func (NopCollector) RecordExecutionError(string, string)         {}
func (NopCollector) RecordRetryAttempt(string, int)              {}

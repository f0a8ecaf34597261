package engine

import (
	"sync"

	"github.com/google/uuid"
)

// ExecutionContext carries one node invocation through all four lifecycle
// phases. Identity fields are immutable for the lifetime of the run; the
// property bag is the only mutable part and is used to hand state between
// phases (a connection probe flag, a rendered template, ...).
type ExecutionContext struct {
	NodeID      string
	WorkflowID  string
	ExecutionID string
	NodeType    string

	InputData     interface{}
	Configuration map[string]interface{}

	mu         sync.RWMutex
	properties map[string]interface{}
}

func NewExecutionContext(nodeID, workflowID, executionID, nodeType string) *ExecutionContext {
	return &ExecutionContext{
		NodeID:        nodeID,
		WorkflowID:    workflowID,
		ExecutionID:   executionID,
		NodeType:      nodeType,
		Configuration: make(map[string]interface{}),
		properties:    make(map[string]interface{}),
	}
}

// NewContextForNode builds a context with fresh workflow/execution ids, for
// callers that run a node outside a larger workflow.
func NewContextForNode(nodeType string) *ExecutionContext {
	return NewExecutionContext(uuid.New().String(), uuid.New().String(), uuid.New().String(), nodeType)
}

func (c *ExecutionContext) WithInput(input interface{}) *ExecutionContext {
	c.InputData = input
	return c
}

func (c *ExecutionContext) WithConfiguration(key string, value interface{}) *ExecutionContext {
	c.Configuration[key] = value
	return c
}

// Config returns the configuration value registered under key. Absence is an
// error for every strategy, not a default.
func (c *ExecutionContext) Config(key string) (interface{}, bool) {
	value, ok := c.Configuration[key]
	return value, ok
}

func (c *ExecutionContext) SetProperty(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties[key] = value
}

func (c *ExecutionContext) Property(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.properties[key]
	return value, ok
}

func (c *ExecutionContext) StringProperty(key string) string {
	value, ok := c.Property(key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

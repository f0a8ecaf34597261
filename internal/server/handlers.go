package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/storage"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
)

// ExecuteNodeRequest is the wire form of one node execution request.
// Configuration carries the strategy config under its well-known key.
type ExecuteNodeRequest struct {
	NodeID        string                 `json:"nodeId"`
	WorkflowID    string                 `json:"workflowId"`
	ExecutionID   string                 `json:"executionId"`
	NodeType      string                 `json:"nodeType" binding:"required"`
	InputData     interface{}            `json:"inputData"`
	Configuration map[string]interface{} `json:"configuration"`
	MaxRetries    *int                   `json:"maxRetries"`
}

type ExecuteNodeResponse struct {
	ExecutionID string                  `json:"executionId"`
	Result      *engine.ExecutionResult `json:"result"`
}

type Handlers struct {
	engine     *engine.Engine
	registry   *engine.Registry
	store      *storage.ExecutionStore
	maxRetries int
	retryDelay time.Duration
	log        logger.Logger
}

func NewHandlers(eng *engine.Engine, registry *engine.Registry, store *storage.ExecutionStore, maxRetries int, retryDelay time.Duration, log logger.Logger) *Handlers {
	return &Handlers{
		engine:     eng,
		registry:   registry,
		store:      store,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log,
	}
}

// ExecuteNode runs one node synchronously and returns its result. The
// execution outcome is always a 200 with a result payload; only a malformed
// request is a client error.
func (h *Handlers) ExecuteNode(c *gin.Context) {
	var req ExecuteNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.NodeID == "" {
		req.NodeID = uuid.New().String()
	}
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.New().String()
	}
	if req.ExecutionID == "" {
		req.ExecutionID = uuid.New().String()
	}

	ec := engine.NewExecutionContext(req.NodeID, req.WorkflowID, req.ExecutionID, req.NodeType).
		WithInput(req.InputData)
	for key, value := range req.Configuration {
		ec.WithConfiguration(key, value)
	}

	maxRetries := h.maxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	var result *engine.ExecutionResult
	if maxRetries > 0 {
		result = h.engine.ExecuteNodeWithRetry(c.Request.Context(), ec, maxRetries, h.retryDelay)
	} else {
		result = h.engine.ExecuteNode(c.Request.Context(), ec)
	}

	if h.store != nil {
		if err := h.store.Save(c.Request.Context(), storage.NewRecord(ec, result)); err != nil {
			h.log.Error("Failed to persist execution record", "executionId", ec.ExecutionID, "error", err)
		}
	}

	c.JSON(http.StatusOK, ExecuteNodeResponse{ExecutionID: req.ExecutionID, Result: result})
}

func (h *Handlers) GetExecution(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence is not configured"})
		return
	}

	record, err := h.store.GetByExecutionID(c.Request.Context(), c.Param("executionId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handlers) ListWorkflowExecutions(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence is not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.store.ListByWorkflow(c.Request.Context(), c.Param("workflowId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": records, "count": len(records)})
}

func (h *Handlers) ListNodeTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": h.registry.Types()})
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

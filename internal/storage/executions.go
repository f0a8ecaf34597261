package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
)

// ExecutionRecord is the persisted outcome of one node run.
type ExecutionRecord struct {
	ID           string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExecutionID  string        `gorm:"index;type:varchar(36)" json:"executionId"`
	WorkflowID   string        `gorm:"index;type:varchar(36)" json:"workflowId"`
	NodeID       string        `gorm:"type:varchar(36)" json:"nodeId"`
	NodeType     string        `gorm:"type:varchar(64)" json:"nodeType"`
	Status       string        `gorm:"type:varchar(16)" json:"status"`
	OutputData   string        `gorm:"type:text" json:"outputData,omitempty"`
	ErrorMessage string        `gorm:"type:text" json:"errorMessage,omitempty"`
	Metadata     string        `gorm:"type:text" json:"metadata,omitempty"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"createdAt"`
}

func (ExecutionRecord) TableName() string {
	return "node_executions"
}

// NewRecord flattens a finished run into its persisted form. Output and
// metadata are stored as JSON text; a payload that cannot marshal is dropped
// rather than failing the save.
func NewRecord(ec *engine.ExecutionContext, result *engine.ExecutionResult) *ExecutionRecord {
	record := &ExecutionRecord{
		ID:           uuid.New().String(),
		ExecutionID:  ec.ExecutionID,
		WorkflowID:   ec.WorkflowID,
		NodeID:       ec.NodeID,
		NodeType:     ec.NodeType,
		Status:       string(result.Status),
		ErrorMessage: result.ErrorMessage,
		Duration:     result.Duration,
		CreatedAt:    time.Now().UTC(),
	}

	if result.OutputData != nil {
		if data, err := json.Marshal(result.OutputData); err == nil {
			record.OutputData = string(data)
		}
	}
	if len(result.Metadata) > 0 {
		if data, err := json.Marshal(result.Metadata); err == nil {
			record.Metadata = string(data)
		}
	}
	return record
}

// ExecutionStore persists and queries node execution records.
type ExecutionStore struct {
	db *gorm.DB
}

func NewExecutionStore(db *gorm.DB) (*ExecutionStore, error) {
	if err := db.AutoMigrate(&ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate execution records: %w", err)
	}
	return &ExecutionStore{db: db}, nil
}

func (s *ExecutionStore) Save(ctx context.Context, record *ExecutionRecord) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *ExecutionStore) GetByExecutionID(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	var record ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("created_at DESC").
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("execution not found")
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *ExecutionStore) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// CountByStatus reports how many runs of a workflow ended in each status.
func (s *ExecutionStore) CountByStatus(ctx context.Context, workflowID string) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&ExecutionRecord{}).
		Select("status, COUNT(*) as count").
		Where("workflow_id = ?", workflowID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// NewPostgresDB opens the production database connection.
func NewPostgresDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Package sqlstore is the relational Store built on GORM. Tables are created
// by the migration package.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/autoflow/internal/database"
	"github.com/BaSui01/autoflow/internal/store"
	"github.com/BaSui01/autoflow/trigger"
	"github.com/BaSui01/autoflow/workflow"
)

var _ store.Store = (*Store)(nil)

// Store persists workflows, executions and webhooks through a PoolManager.
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// New wraps a connection pool.
func New(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger.With(zap.String("component", "sqlstore"))}
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.pool.DB().WithContext(ctx)
}

// =============================================================================
// workflows
// =============================================================================

// SaveWorkflow upserts a definition by id.
func (s *Store) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	rec, err := toWorkflowRecord(wf)
	if err != nil {
		return err
	}
	err = s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "name", "definition", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("save workflow %s: %w", wf.ID, err)
	}
	return nil
}

// GetWorkflow loads a definition.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var rec WorkflowRecord
	if err := s.db(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, id)
		}
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return rec.toWorkflow()
}

// ListWorkflows returns the definitions owned by ownerID.
func (s *Store) ListWorkflows(ctx context.Context, ownerID string) ([]*workflow.Workflow, error) {
	var recs []WorkflowRecord
	if err := s.db(ctx).Where("owner_id = ?", ownerID).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	out := make([]*workflow.Workflow, 0, len(recs))
	for i := range recs {
		wf, err := recs[i].toWorkflow()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// =============================================================================
// executions
// =============================================================================

// CreateExecution inserts the header and every node row in one transaction.
func (s *Store) CreateExecution(ctx context.Context, snap *workflow.Snapshot) error {
	trig, err := encodeJSON(snap.TriggerData)
	if err != nil {
		return fmt.Errorf("encode trigger data: %w", err)
	}
	header := &ExecutionRecord{
		ID:           snap.ID,
		WorkflowID:   snap.WorkflowID,
		RequesterID:  snap.RequesterID,
		Status:       string(snap.Status),
		ErrorMessage: snap.Error,
		TriggerData:  trig,
		StartedAt:    snap.StartedAt.UTC(),
		FinishedAt:   utcPtr(snap.FinishedAt),
	}
	nodes := make([]*NodeStateRecord, 0, len(snap.Nodes))
	for i, n := range snap.Nodes {
		rec, err := toNodeStateRecord(snap.ID, i, n)
		if err != nil {
			return err
		}
		nodes = append(nodes, rec)
	}

	err = s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		if err := tx.Create(header).Error; err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}
		return tx.Create(&nodes).Error
	})
	if err != nil {
		return fmt.Errorf("create execution %s: %w", snap.ID, err)
	}
	return nil
}

// UpdateNode overwrites one node row.
func (s *Store) UpdateNode(ctx context.Context, executionID string, state workflow.NodeState) error {
	rec, err := toNodeStateRecord(executionID, 0, state)
	if err != nil {
		return err
	}
	res := s.db(ctx).Model(&NodeStateRecord{}).
		Where("execution_id = ? AND node_id = ?", executionID, state.NodeID).
		Updates(map[string]any{
			"kind":          rec.Kind,
			"status":        rec.Status,
			"output":        rec.Output,
			"error_message": rec.ErrorMessage,
			"started_at":    rec.StartedAt,
			"finished_at":   rec.FinishedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update node %s of %s: %w", state.NodeID, executionID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if err := s.requireExecution(ctx, executionID); err != nil {
		return err
	}

	// Unknown nodes are appended. An existing row whose values did not change
	// hits the conflict clause and is left alone.
	var count int64
	if err := s.db(ctx).Model(&NodeStateRecord{}).Where("execution_id = ?", executionID).Count(&count).Error; err != nil {
		return fmt.Errorf("count nodes of %s: %w", executionID, err)
	}
	rec.Position = int(count)
	err = s.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("append node %s to %s: %w", state.NodeID, executionID, err)
	}
	return nil
}

// FinishExecution records the terminal status on the header row.
func (s *Store) FinishExecution(ctx context.Context, executionID string, status workflow.ExecutionStatus, errMsg string, finishedAt time.Time) error {
	res := s.db(ctx).Model(&ExecutionRecord{}).
		Where("id = ?", executionID).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"finished_at":   finishedAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("finish execution %s: %w", executionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.requireExecution(ctx, executionID)
	}
	return nil
}

// requireExecution distinguishes a missing execution from an update that
// changed nothing.
func (s *Store) requireExecution(ctx context.Context, executionID string) error {
	var count int64
	if err := s.db(ctx).Model(&ExecutionRecord{}).Where("id = ?", executionID).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup execution %s: %w", executionID, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrExecutionNotFound, executionID)
	}
	return nil
}

// GetExecution assembles the header and node rows.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*workflow.Snapshot, error) {
	var header ExecutionRecord
	if err := s.db(ctx).Where("id = ?", executionID).First(&header).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrExecutionNotFound, executionID)
		}
		return nil, fmt.Errorf("get execution %s: %w", executionID, err)
	}

	var rows []NodeStateRecord
	if err := s.db(ctx).Where("execution_id = ?", executionID).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get nodes of %s: %w", executionID, err)
	}

	trig, err := decodeJSON(header.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("decode trigger data of %s: %w", executionID, err)
	}
	snap := &workflow.Snapshot{
		ID:          header.ID,
		WorkflowID:  header.WorkflowID,
		RequesterID: header.RequesterID,
		TriggerData: trig,
		Status:      workflow.ExecutionStatus(header.Status),
		Error:       header.ErrorMessage,
		Nodes:       make([]workflow.NodeState, 0, len(rows)),
		StartedAt:   header.StartedAt.UTC(),
		FinishedAt:  utcPtr(header.FinishedAt),
	}
	for i := range rows {
		n, err := rows[i].toNodeState()
		if err != nil {
			return nil, err
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	return snap, nil
}

// =============================================================================
// webhooks
// =============================================================================

// RegisterWebhook inserts a new endpoint.
func (s *Store) RegisterWebhook(ctx context.Context, reg *trigger.Registration) error {
	if reg == nil || reg.Endpoint == "" {
		return fmt.Errorf("webhook endpoint is required")
	}
	rec := toWebhookRecord(reg)
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&WebhookRecord{}).Where("endpoint = ?", reg.Endpoint).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", trigger.ErrEndpointTaken, reg.Endpoint)
		}
		return tx.Create(rec).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", trigger.ErrEndpointTaken, reg.Endpoint)
	}
	return err
}

// DeleteWebhook removes an endpoint.
func (s *Store) DeleteWebhook(ctx context.Context, endpoint string) error {
	res := s.db(ctx).Where("endpoint = ?", endpoint).Delete(&WebhookRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete webhook %s: %w", endpoint, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", trigger.ErrEndpointNotFound, endpoint)
	}
	return nil
}

// Lookup resolves an endpoint.
func (s *Store) Lookup(ctx context.Context, endpoint string) (*trigger.Registration, error) {
	var rec WebhookRecord
	if err := s.db(ctx).Where("endpoint = ?", endpoint).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", trigger.ErrEndpointNotFound, endpoint)
		}
		return nil, fmt.Errorf("lookup webhook %s: %w", endpoint, err)
	}
	return rec.toRegistration(), nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

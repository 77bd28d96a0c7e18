package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dynaflow/engine/common/db"
	"github.com/dynaflow/engine/common/models"
)

// ExecutionRepository handles database operations for workflow executions
type ExecutionRepository struct {
	db *db.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(database *db.DB) *ExecutionRepository {
	return &ExecutionRepository{db: database}
}

// Upsert replaces a workflow execution row by id, preserving created_at
// for rows that already exist
func (r *ExecutionRepository) Upsert(ctx context.Context, exec *models.WorkflowExecution) error {
	now := formatTime(time.Now())

	query := `
		INSERT INTO workflow_executions
			(id, workflow_name, status, current_node_id, state_data, graph_json, parent_execution_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_name = excluded.workflow_name,
			status = excluded.status,
			current_node_id = excluded.current_node_id,
			state_data = excluded.state_data,
			graph_json = excluded.graph_json,
			parent_execution_id = excluded.parent_execution_id,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		exec.ID,
		exec.WorkflowName,
		exec.Status,
		exec.CurrentNodeID,
		string(exec.StateData),
		string(exec.GraphJSON),
		exec.ParentExecutionID,
		now,
		now,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert workflow execution: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow execution by its id
func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_name, status, current_node_id, state_data, graph_json, parent_execution_id, created_at, updated_at
		FROM workflow_executions
		WHERE id = ?
	`

	var (
		exec          models.WorkflowExecution
		currentNode   sql.NullString
		parentExecID  sql.NullString
		stateData     string
		graphJSON     string
		createdAt     string
		updatedAt     string
	)

	err := r.db.QueryRowContext(ctx, query, executionID).Scan(
		&exec.ID,
		&exec.WorkflowName,
		&exec.Status,
		&currentNode,
		&stateData,
		&graphJSON,
		&parentExecID,
		&createdAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow execution: %w", err)
	}

	exec.CurrentNodeID = stringPtr(currentNode)
	exec.ParentExecutionID = stringPtr(parentExecID)
	exec.StateData = json.RawMessage(stateData)
	exec.GraphJSON = json.RawMessage(graphJSON)
	exec.CreatedAt = parseTime(createdAt)
	exec.UpdatedAt = parseTime(updatedAt)

	return &exec, nil
}

// ListRecent retrieves the most recently created executions
func (r *ExecutionRepository) ListRecent(ctx context.Context, limit int) ([]*models.ExecutionSummary, error) {
	query := `
		SELECT id, workflow_name, status, current_node_id, parent_execution_id, created_at, updated_at
		FROM workflow_executions
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow executions: %w", err)
	}
	defer rows.Close()

	var summaries []*models.ExecutionSummary
	for rows.Next() {
		var (
			s            models.ExecutionSummary
			currentNode  sql.NullString
			parentExecID sql.NullString
			createdAt    string
			updatedAt    string
		)
		err := rows.Scan(
			&s.ID,
			&s.WorkflowName,
			&s.Status,
			&currentNode,
			&parentExecID,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow execution: %w", err)
		}
		s.CurrentNodeID = stringPtr(currentNode)
		s.ParentExecutionID = stringPtr(parentExecID)
		s.CreatedAt = parseTime(createdAt)
		s.UpdatedAt = parseTime(updatedAt)
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow executions: %w", err)
	}

	return summaries, nil
}

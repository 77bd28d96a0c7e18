package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dynaflow/engine/common/db"
	"github.com/dynaflow/engine/common/models"
)

// NodeExecutionRepository handles the append-only node_executions table
type NodeExecutionRepository struct {
	db *db.DB
}

// NewNodeExecutionRepository creates a new node execution repository
func NewNodeExecutionRepository(database *db.DB) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: database}
}

// Append inserts one node execution attempt and returns the generated id.
// completed_at is set only when the attempt completed.
func (r *NodeExecutionRepository) Append(ctx context.Context, rec *models.NodeExecution) (string, error) {
	id := uuid.New().String()
	startedAt := time.Now()

	var completedAt any
	if rec.Status == models.NodeCompleted {
		completedAt = formatTime(startedAt)
	}

	query := `
		INSERT INTO node_executions
			(id, workflow_execution_id, node_id, node_type, node_label, status,
			 request_data, response_data, error_message, execution_time_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		id,
		rec.WorkflowExecutionID,
		rec.NodeID,
		rec.NodeType,
		rec.NodeLabel,
		rec.Status,
		rawOrNil(rec.RequestData),
		rawOrNil(rec.ResponseData),
		rec.ErrorMessage,
		rec.ExecutionTimeMS,
		formatTime(startedAt),
		completedAt,
	)

	if err != nil {
		return "", fmt.Errorf("failed to append node execution: %w", err)
	}

	return id, nil
}

// ListByExecution retrieves all node executions for a workflow ordered by started_at
func (r *NodeExecutionRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	query := `
		SELECT id, workflow_execution_id, node_id, node_type, node_label, status,
		       request_data, response_data, error_message, execution_time_ms, started_at, completed_at
		FROM node_executions
		WHERE workflow_execution_id = ?
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list node executions: %w", err)
	}
	defer rows.Close()

	var records []*models.NodeExecution
	for rows.Next() {
		var (
			rec          models.NodeExecution
			nodeLabel    sql.NullString
			requestData  sql.NullString
			responseData sql.NullString
			errorMessage sql.NullString
			execTimeMS   sql.NullInt64
			startedAt    string
			completedAt  sql.NullString
		)
		err := rows.Scan(
			&rec.ID,
			&rec.WorkflowExecutionID,
			&rec.NodeID,
			&rec.NodeType,
			&nodeLabel,
			&rec.Status,
			&requestData,
			&responseData,
			&errorMessage,
			&execTimeMS,
			&startedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}
		rec.NodeLabel = nodeLabel.String
		if requestData.Valid {
			rec.RequestData = json.RawMessage(requestData.String)
		}
		if responseData.Valid {
			rec.ResponseData = json.RawMessage(responseData.String)
		}
		rec.ErrorMessage = stringPtr(errorMessage)
		if execTimeMS.Valid {
			v := execTimeMS.Int64
			rec.ExecutionTimeMS = &v
		}
		rec.StartedAt = parseTime(startedAt)
		rec.CompletedAt = parseTimePtr(completedAt)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return records, nil
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

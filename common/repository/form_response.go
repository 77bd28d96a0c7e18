package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dynaflow/engine/common/db"
	"github.com/dynaflow/engine/common/models"
)

// FormResponseRepository handles the form_responses table
type FormResponseRepository struct {
	db *db.DB
}

// NewFormResponseRepository creates a new form response repository
func NewFormResponseRepository(database *db.DB) *FormResponseRepository {
	return &FormResponseRepository{db: database}
}

// Append inserts one form submission. Multiple rows per node are allowed
// when the same form is visited again.
func (r *FormResponseRepository) Append(ctx context.Context, executionID, nodeID string, formData json.RawMessage) (string, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO form_responses (id, workflow_execution_id, node_id, form_data, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, id, executionID, nodeID, string(formData), formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to append form response: %w", err)
	}

	return id, nil
}

// ListByExecution retrieves all form submissions for a workflow execution
func (r *FormResponseRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.FormResponse, error) {
	query := `
		SELECT id, workflow_execution_id, node_id, form_data, submitted_at
		FROM form_responses
		WHERE workflow_execution_id = ?
		ORDER BY submitted_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list form responses: %w", err)
	}
	defer rows.Close()

	var responses []*models.FormResponse
	for rows.Next() {
		var (
			resp        models.FormResponse
			formData    string
			submittedAt string
		)
		if err := rows.Scan(&resp.ID, &resp.WorkflowExecutionID, &resp.NodeID, &formData, &submittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan form response: %w", err)
		}
		resp.FormData = json.RawMessage(formData)
		resp.SubmittedAt = parseTime(submittedAt)
		responses = append(responses, &resp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating form responses: %w", err)
	}

	return responses, nil
}

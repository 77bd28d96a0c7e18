package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dynaflow/engine/common/db"
	"github.com/dynaflow/engine/common/models"
)

// ServiceMetricRepository handles the service_metrics table
type ServiceMetricRepository struct {
	db *db.DB
}

// NewServiceMetricRepository creates a new service metric repository
func NewServiceMetricRepository(database *db.DB) *ServiceMetricRepository {
	return &ServiceMetricRepository{db: database}
}

// Update upserts the aggregate for one service node. The incremental mean
// and the counters are computed in a single statement so concurrent
// executions touching the same node id cannot lose counts.
func (r *ServiceMetricRepository) Update(ctx context.Context, nodeID string, success bool, execTimeMS int64) error {
	var succ, fail int64
	if success {
		succ = 1
	} else {
		fail = 1
	}

	query := `
		INSERT INTO service_metrics (node_id, total_calls, successes, failures, avg_time_ms, last_called)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			total_calls = total_calls + 1,
			successes = successes + excluded.successes,
			failures = failures + excluded.failures,
			avg_time_ms = (avg_time_ms * total_calls + excluded.avg_time_ms) / (total_calls + 1),
			last_called = excluded.last_called
	`

	_, err := r.db.ExecContext(ctx, query, nodeID, succ, fail, float64(execTimeMS), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to update service metrics: %w", err)
	}

	return nil
}

// GetByNodeID retrieves the aggregate for one service node
func (r *ServiceMetricRepository) GetByNodeID(ctx context.Context, nodeID string) (*models.ServiceMetric, error) {
	query := `
		SELECT node_id, total_calls, successes, failures, avg_time_ms, last_called
		FROM service_metrics
		WHERE node_id = ?
	`

	var (
		metric     models.ServiceMetric
		lastCalled sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, nodeID).Scan(
		&metric.NodeID,
		&metric.TotalCalls,
		&metric.Successes,
		&metric.Failures,
		&metric.AvgTimeMS,
		&lastCalled,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service metrics: %w", err)
	}

	metric.LastCalled = parseTimePtr(lastCalled)

	return &metric, nil
}

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

// FlowRepository handles the versioned flow catalog
type FlowRepository struct {
	db *db.DB
}

// NewFlowRepository creates a new flow repository
func NewFlowRepository(database *db.DB) *FlowRepository {
	return &FlowRepository{db: database}
}

// Save stores a new version of a named flow and returns the version number
func (r *FlowRepository) Save(ctx context.Context, name string, data json.RawMessage) (int, error) {
	var latest sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(version) FROM flows WHERE name = ?`, name).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest flow version: %w", err)
	}

	version := int(latest.Int64) + 1

	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO flows (name, version, data, created_at) VALUES (?, ?, ?, ?)`,
		name,
		version,
		string(data),
		formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save flow: %w", err)
	}

	return version, nil
}

// GetLatest retrieves the latest version of a named flow
func (r *FlowRepository) GetLatest(ctx context.Context, name string) (*models.Flow, error) {
	query := `
		SELECT id, name, version, data, created_at
		FROM flows
		WHERE name = ?
		ORDER BY version DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, name))
}

// GetVersion retrieves a specific version of a named flow
func (r *FlowRepository) GetVersion(ctx context.Context, name string, version int) (*models.Flow, error) {
	query := `
		SELECT id, name, version, data, created_at
		FROM flows
		WHERE name = ? AND version = ?
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, name, version))
}

// ListVersions lists all versions of a named flow, newest first
func (r *FlowRepository) ListVersions(ctx context.Context, name string) ([]*models.FlowVersion, error) {
	query := `
		SELECT version, created_at
		FROM flows
		WHERE name = ?
		ORDER BY version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.FlowVersion
	for rows.Next() {
		var (
			v         models.FlowVersion
			createdAt string
		)
		if err := rows.Scan(&v.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan flow version: %w", err)
		}
		v.CreatedAt = parseTime(createdAt)
		versions = append(versions, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flow versions: %w", err)
	}

	return versions, nil
}

func (r *FlowRepository) scanOne(row *sql.Row) (*models.Flow, error) {
	var (
		flow      models.Flow
		data      string
		createdAt string
	)

	err := row.Scan(&flow.ID, &flow.Name, &flow.Version, &data, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	flow.Data = json.RawMessage(data)
	flow.CreatedAt = parseTime(createdAt)

	return &flow, nil
}

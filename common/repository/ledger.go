package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/dynaflow/engine/common/db"
)

// ErrNotFound is returned by read paths when no row matches
var ErrNotFound = errors.New("not found")

// timeLayout is the ISO-8601 format used for every persisted timestamp.
// Fixed-width fractional seconds keep lexicographic order chronological,
// which the ORDER BY started_at read paths rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger aggregates the repositories backing the execution ledger.
// It is the one source of truth for observability and resume.
type Ledger struct {
	Executions     *ExecutionRepository
	NodeExecutions *NodeExecutionRepository
	FormResponses  *FormResponseRepository
	ServiceMetrics *ServiceMetricRepository
	Flows          *FlowRepository
}

// NewLedger creates all repositories over one database
func NewLedger(database *db.DB) *Ledger {
	return &Ledger{
		Executions:     NewExecutionRepository(database),
		NodeExecutions: NewNodeExecutionRepository(database),
		FormResponses:  NewFormResponseRepository(database),
		ServiceMetrics: NewServiceMetricRepository(database),
		Flows:          NewFlowRepository(database),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of a workflow execution
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusPaused    ExecutionStatus = "paused"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// NodeStatus is the outcome of one node execution attempt
type NodeStatus string

const (
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodePaused    NodeStatus = "paused"
)

// WorkflowExecution is one row of the workflow_executions table.
// Created when the runtime first sees a run, updated in place through every
// status transition, never deleted.
type WorkflowExecution struct {
	ID                string          `json:"id"`
	WorkflowName      string          `json:"workflow_name"`
	Status            ExecutionStatus `json:"status"`
	CurrentNodeID     *string         `json:"current_node_id"`
	StateData         json.RawMessage `json:"state_data"`
	GraphJSON         json.RawMessage `json:"graph_json"`
	ParentExecutionID *string         `json:"parent_execution_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ExecutionSummary is the listing projection of a workflow execution
type ExecutionSummary struct {
	ID                string          `json:"id"`
	WorkflowName      string          `json:"workflow_name"`
	Status            ExecutionStatus `json:"status"`
	CurrentNodeID     *string         `json:"current_node_id"`
	ParentExecutionID *string         `json:"parent_execution_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NodeExecution is one row of the node_executions table. Append-only.
type NodeExecution struct {
	ID                  string          `json:"id"`
	WorkflowExecutionID string          `json:"workflow_execution_id"`
	NodeID              string          `json:"node_id"`
	NodeType            string          `json:"node_type"`
	NodeLabel           string          `json:"node_label"`
	Status              NodeStatus      `json:"status"`
	RequestData         json.RawMessage `json:"request_data,omitempty"`
	ResponseData        json.RawMessage `json:"response_data,omitempty"`
	ErrorMessage        *string         `json:"error_message"`
	ExecutionTimeMS     *int64          `json:"execution_time_ms"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at"`
}

// FormResponse is one row of the form_responses table; one per submission
type FormResponse struct {
	ID                  string          `json:"id"`
	WorkflowExecutionID string          `json:"workflow_execution_id"`
	NodeID              string          `json:"node_id"`
	FormData            json.RawMessage `json:"form_data"`
	SubmittedAt         time.Time       `json:"submitted_at"`
}

// ServiceMetric aggregates outbound call statistics for one service node.
// Invariant: TotalCalls == Successes + Failures.
type ServiceMetric struct {
	NodeID     string     `json:"node_id"`
	TotalCalls int64      `json:"total_calls"`
	Successes  int64      `json:"successes"`
	Failures   int64      `json:"failures"`
	AvgTimeMS  float64    `json:"avg_time_ms"`
	LastCalled *time.Time `json:"last_called"`
}

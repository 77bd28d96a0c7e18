// Package executors implements the per-kind node executors. Every executor
// is produced by a factory that captures the node config and the
// per-execution context, and returns a state-to-state function whose side
// effects are mutating the state and writing ledger records.
package executors

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dynaflow/engine/cmd/workflow-engine/condition"
	"github.com/dynaflow/engine/cmd/workflow-engine/graph"
	"github.com/dynaflow/engine/cmd/workflow-engine/script"
	"github.com/dynaflow/engine/common/logger"
	"github.com/dynaflow/engine/common/models"
	"github.com/dynaflow/engine/common/repository"
)

// PauseKey marks a suspended execution; present in state iff the current
// run is waiting on a form submission
const PauseKey = "_paused_at_form"

// State is the mutable payload carried along a traversal
type State = map[string]any

// RunFunc executes one node: consumes state, produces state. Node-local
// failures are captured in the state and the ledger, never raised.
type RunFunc func(ctx context.Context, state State) State

// SubgraphRunner runs a child graph synchronously inside the parent's
// execution thread. Implemented by the runtime; injected here to keep the
// executor package free of a dependency cycle.
type SubgraphRunner interface {
	RunSubgraph(ctx context.Context, g *graph.Graph, executionID string, state State) (State, error)
}

// Context carries the per-execution collaborators an executor closes over.
// ExecutionID attributes every ledger write to the correct run.
type Context struct {
	ExecutionID string
	Ledger      *repository.Ledger
	Conditions  *condition.Evaluator
	Scripts     *script.Runner
	HTTPClient  *http.Client
	SubRunner   SubgraphRunner
	Log         *logger.Logger
}

// Factory builds an executor for one node within one execution
type Factory func(node *graph.Node, ec *Context) RunFunc

// Registry maps node types to executor factories
func Registry() map[string]Factory {
	return map[string]Factory{
		graph.NodeTypeService:     NewServiceExecutor,
		graph.NodeTypeDecision:    NewDecisionExecutor,
		graph.NodeTypeForm:        NewFormExecutor,
		graph.NodeTypeSubworkflow: NewSubworkflowExecutor,
	}
}

// appendNodeExecution writes one node execution row; ledger failures are
// logged and swallowed so a node never aborts on observability writes
func (ec *Context) appendNodeExecution(ctx context.Context, rec *models.NodeExecution) {
	rec.WorkflowExecutionID = ec.ExecutionID
	if _, err := ec.Ledger.NodeExecutions.Append(ctx, rec); err != nil {
		ec.Log.Error("failed to record node execution", "node_id", rec.NodeID, "error", err)
	}
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return raw
}

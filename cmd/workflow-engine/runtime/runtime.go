// Package runtime drives workflow executions end to end: it compiles a
// graph per invocation, walks it through the compiled machine, classifies
// the outcome, and keeps the execution ledger current through every status
// transition. The runtime itself is stateless between calls; a paused
// execution lives entirely in its ledger row.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dynaflow/engine/cmd/workflow-engine/compiler"
	"github.com/dynaflow/engine/cmd/workflow-engine/condition"
	"github.com/dynaflow/engine/cmd/workflow-engine/executors"
	"github.com/dynaflow/engine/cmd/workflow-engine/graph"
	"github.com/dynaflow/engine/cmd/workflow-engine/script"
	"github.com/dynaflow/engine/common/config"
	"github.com/dynaflow/engine/common/logger"
	"github.com/dynaflow/engine/common/models"
	"github.com/dynaflow/engine/common/repository"
)

// ErrNotFound reports a resume against an unknown execution id
var ErrNotFound = errors.New("execution not found")

// ErrNotPaused reports a resume against an execution that is not waiting
// on a form
var ErrNotPaused = errors.New("execution is not paused")

// Snapshot statuses
const (
	StatusSuccess = "success"
	StatusPaused  = "paused"
	StatusError   = "error"
)

// Snapshot is the caller-facing outcome of one execute or resume call
type Snapshot struct {
	Status       string         `json:"status"`
	ExecutionID  string         `json:"execution_id"`
	Result       map[string]any `json:"result,omitempty"`
	PausedAtForm map[string]any `json:"paused_at_form,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Runtime owns the shared collaborators every execution uses
type Runtime struct {
	ledger     *repository.Ledger
	conditions *condition.Evaluator
	scripts    *script.Runner
	httpClient *http.Client
	maxSteps   int
	log        *logger.Logger
}

// New creates a runtime wired to the ledger and engine configuration
func New(ledger *repository.Ledger, cfg *config.Config, log *logger.Logger) *Runtime {
	return &Runtime{
		ledger:     ledger,
		conditions: condition.NewEvaluator(log),
		scripts:    script.NewRunner(cfg.Engine.EnableScripts, cfg.Engine.ScriptTimeout, log),
		httpClient: &http.Client{Timeout: cfg.Engine.HTTPTimeout},
		maxSteps:   cfg.Engine.MaxSteps,
		log:        log,
	}
}

// execContext binds the shared collaborators to one execution id
func (r *Runtime) execContext(executionID string) *executors.Context {
	return &executors.Context{
		ExecutionID: executionID,
		Ledger:      r.ledger,
		Conditions:  r.conditions,
		Scripts:     r.scripts,
		HTTPClient:  r.httpClient,
		SubRunner:   r,
		Log:         r.log.WithExecutionID(executionID),
	}
}

// Execute runs a graph document from its entry node under a fresh execution
// id. It never returns an error: every failure mode is captured in the
// snapshot and the ledger row.
func (r *Runtime) Execute(ctx context.Context, rawGraph json.RawMessage, inputs map[string]any, name string) *Snapshot {
	executionID := uuid.New().String()
	log := r.log.WithExecutionID(executionID)

	if inputs == nil {
		inputs = map[string]any{}
	}
	state := executors.State{"input": inputs}

	g, err := graph.Parse(rawGraph)
	if err != nil {
		log.Error("graph rejected", "error", err)
		return r.fail(ctx, executionID, name, state, err, rawGraph)
	}

	machine, err := compiler.Compile(g, r.execContext(executionID), r.maxSteps)
	if err != nil {
		log.Error("graph failed to compile", "error", err)
		return r.fail(ctx, executionID, name, state, err, rawGraph)
	}

	// The row exists before the first node runs so that node executions and
	// graph_ref lookups always have a parent to land on
	r.persist(ctx, executionID, name, models.StatusRunning, stringPtrOrNil(g.EntryNodeID()), state, rawGraph)

	log.Info("execution started", "workflow_name", name, "nodes", len(g.Nodes))

	final, err := machine.Invoke(ctx, state)
	return r.classify(ctx, executionID, name, g, final, err, rawGraph)
}

// Resume completes a paused execution with a form submission and restarts
// traversal from the form node's successor. Re-running the nodes before the
// form would duplicate their side effects, so the completed prefix is never
// revisited.
func (r *Runtime) Resume(ctx context.Context, executionID string, formData map[string]any) (*Snapshot, error) {
	exec, err := r.ledger.Executions.GetByID(ctx, executionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}

	var state executors.State
	if err := json.Unmarshal(exec.StateData, &state); err != nil {
		return nil, fmt.Errorf("failed to decode execution state: %w", err)
	}

	pause, _ := state[executors.PauseKey].(map[string]any)
	if exec.Status != models.StatusPaused || pause == nil {
		return nil, ErrNotPaused
	}
	formNodeID, _ := pause["node_id"].(string)

	log := r.log.WithExecutionID(executionID)
	log.Info("resuming execution", "node_id", formNodeID)

	if formData == nil {
		formData = map[string]any{}
	}
	formJSON, err := json.Marshal(formData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form data: %w", err)
	}
	if _, err := r.ledger.FormResponses.Append(ctx, executionID, formNodeID, formJSON); err != nil {
		log.Error("failed to record form response", "error", err)
	}

	ec := r.execContext(executionID)
	var zero int64
	formNode := findNode(exec.GraphJSON, formNodeID)
	nodeLabel := formNodeID
	if formNode != nil {
		nodeLabel = formNode.Label()
	}
	rec := &models.NodeExecution{
		WorkflowExecutionID: executionID,
		NodeID:              formNodeID,
		NodeType:            graph.NodeTypeForm,
		NodeLabel:           nodeLabel,
		Status:              models.NodeCompleted,
		RequestData:         formJSON,
		ResponseData:        formJSON,
		ExecutionTimeMS:     &zero,
	}
	if _, err := r.ledger.NodeExecutions.Append(ctx, rec); err != nil {
		log.Error("failed to record form completion", "error", err)
	}

	// Fold the submission into the state: the form node gets its slot, the
	// submitted keys overwrite the workflow input
	delete(state, executors.PauseKey)
	state[formNodeID] = map[string]any{"form_data": formData}
	input, _ := state["input"].(map[string]any)
	if input == nil {
		input = map[string]any{}
	}
	for k, v := range formData {
		input[k] = v
	}
	state["input"] = input

	g, err := graph.Parse(exec.GraphJSON)
	if err != nil {
		return nil, fmt.Errorf("stored graph is invalid: %w", err)
	}
	machine, err := compiler.Compile(g, ec, r.maxSteps)
	if err != nil {
		return nil, fmt.Errorf("stored graph failed to compile: %w", err)
	}

	r.persist(ctx, executionID, exec.WorkflowName, models.StatusRunning, &formNodeID, state, exec.GraphJSON)

	next := machine.Successor(formNodeID, state)
	if next == "" || next == compiler.End {
		// The form was the last node; the submission completes the run
		return r.classify(ctx, executionID, exec.WorkflowName, g, state, nil, exec.GraphJSON), nil
	}

	final, err := machine.InvokeFrom(ctx, next, state)
	return r.classify(ctx, executionID, exec.WorkflowName, g, final, err, exec.GraphJSON), nil
}

// RunSubgraph executes a child graph inside the caller's thread under its
// own execution id. Satisfies the executor package's SubgraphRunner.
func (r *Runtime) RunSubgraph(ctx context.Context, g *graph.Graph, executionID string, state executors.State) (executors.State, error) {
	machine, err := compiler.Compile(g, r.execContext(executionID), r.maxSteps)
	if err != nil {
		return nil, err
	}
	return machine.Invoke(ctx, state)
}

// classify turns a finished traversal into a snapshot and the matching
// terminal (or paused) ledger state
func (r *Runtime) classify(ctx context.Context, executionID, name string, g *graph.Graph, state executors.State, invokeErr error, rawGraph json.RawMessage) *Snapshot {
	log := r.log.WithExecutionID(executionID)

	if invokeErr != nil {
		log.Error("execution failed", "error", invokeErr)
		return r.fail(ctx, executionID, name, state, invokeErr, rawGraph)
	}

	if pause, ok := state[executors.PauseKey].(map[string]any); ok {
		formNodeID, _ := pause["node_id"].(string)
		log.Info("execution paused", "node_id", formNodeID)
		r.persist(ctx, executionID, name, models.StatusPaused, &formNodeID, state, rawGraph)
		return &Snapshot{Status: StatusPaused, ExecutionID: executionID, Result: state, PausedAtForm: pause}
	}

	log.Info("execution completed")
	r.persist(ctx, executionID, name, models.StatusCompleted, stringPtrOrNil(g.LastNodeID()), state, rawGraph)
	return &Snapshot{Status: StatusSuccess, ExecutionID: executionID, Result: state}
}

// fail closes an execution as failed. The error payload lands in the state
// so both the persisted row and the snapshot result carry it.
func (r *Runtime) fail(ctx context.Context, executionID, name string, state executors.State, cause error, rawGraph json.RawMessage) *Snapshot {
	if state == nil {
		state = executors.State{}
	}
	state["error"] = cause.Error()

	r.persist(ctx, executionID, name, models.StatusFailed, nil, state, rawGraph)
	return &Snapshot{Status: StatusError, ExecutionID: executionID, Result: state, Error: cause.Error()}
}

// persist upserts the execution row; ledger failures are logged, not raised
func (r *Runtime) persist(ctx context.Context, executionID, name string, status models.ExecutionStatus, currentNode *string, state executors.State, rawGraph json.RawMessage) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		stateJSON = json.RawMessage(`{}`)
	}

	err = r.ledger.Executions.Upsert(ctx, &models.WorkflowExecution{
		ID:            executionID,
		WorkflowName:  name,
		Status:        status,
		CurrentNodeID: currentNode,
		StateData:     stateJSON,
		GraphJSON:     rawGraph,
	})
	if err != nil {
		r.log.Error("failed to persist execution", "execution_id", executionID, "error", err)
	}
}

// findNode locates a node by id in a stored graph document
func findNode(rawGraph json.RawMessage, nodeID string) *graph.Node {
	var g graph.Graph
	if err := json.Unmarshal(rawGraph, &g); err != nil {
		return nil
	}
	for i := range g.Nodes {
		if g.Nodes[i].ID == nodeID {
			return &g.Nodes[i]
		}
	}
	return nil
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

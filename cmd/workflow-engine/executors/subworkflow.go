package executors

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dynaflow/engine/cmd/workflow-engine/graph"
	"github.com/dynaflow/engine/common/models"
)

// NewSubworkflowExecutor builds the executor for a subworkflow node. The
// child graph comes either inline (data.graph) or by reference to a stored
// execution's graph (data.graph_ref). The child runs synchronously as a new
// execution linked through parent_execution_id; a failing child is recorded
// but never fatal to the parent.
func NewSubworkflowExecutor(node *graph.Node, ec *Context) RunFunc {
	nodeID := node.ID
	nodeLabel := node.Label()

	return func(ctx context.Context, state State) State {
		subgraphJSON := resolveSubgraph(ctx, node, ec)
		if subgraphJSON == nil {
			recordSubFailure(ctx, ec, nodeID, nodeLabel, "no subgraph provided")
			state[nodeID] = map[string]any{"error": "no subgraph provided"}
			return state
		}

		subExecutionID := uuid.New().String()

		subState := State{"input": map[string]any{}}
		if input, ok := state["input"].(map[string]any); ok {
			copied := make(map[string]any, len(input))
			for k, v := range input {
				copied[k] = v
			}
			subState["input"] = copied
		} else if input, ok := state["input"]; ok {
			subState["input"] = input
		}

		subGraph, err := graph.Parse(subgraphJSON)
		if err != nil {
			recordSubFailure(ctx, ec, nodeID, nodeLabel, err.Error())
			state[nodeID] = map[string]any{"error": err.Error()}
			return state
		}

		childName := nodeLabel
		if childName == "" {
			childName = "subworkflow"
		}

		ec.upsertChildExecution(ctx, subExecutionID, childName, models.StatusRunning,
			subGraph.EntryNodeID(), subState, subgraphJSON)

		result, err := ec.SubRunner.RunSubgraph(ctx, subGraph, subExecutionID, subState)
		if err != nil {
			ec.upsertChildExecution(ctx, subExecutionID, childName, models.StatusFailed,
				"", State{"error": err.Error()}, subgraphJSON)
			recordSubFailure(ctx, ec, nodeID, nodeLabel, err.Error())
			state[nodeID] = map[string]any{"error": err.Error()}
			return state
		}

		ec.upsertChildExecution(ctx, subExecutionID, childName, models.StatusCompleted,
			subGraph.LastNodeID(), result, subgraphJSON)

		var zero int64
		ec.appendNodeExecution(ctx, &models.NodeExecution{
			NodeID:          nodeID,
			NodeType:        graph.NodeTypeSubworkflow,
			NodeLabel:       nodeLabel,
			Status:          models.NodeCompleted,
			RequestData:     mustJSON(map[string]any{"sub_execution_id": subExecutionID}),
			ResponseData:    mustJSON(result),
			ExecutionTimeMS: &zero,
		})

		state[nodeID] = map[string]any{
			"sub_execution_id": subExecutionID,
			"result":           result,
		}
		return state
	}
}

// resolveSubgraph returns the child graph document, preferring the inline
// graph over a reference to a stored execution
func resolveSubgraph(ctx context.Context, node *graph.Node, ec *Context) json.RawMessage {
	if inline, ok := node.Data["graph"]; ok && inline != nil {
		return mustJSON(inline)
	}

	ref, _ := node.Data["graph_ref"].(string)
	if ref == "" {
		return nil
	}

	refExec, err := ec.Ledger.Executions.GetByID(ctx, ref)
	if err != nil {
		ec.Log.Warn("referenced workflow not found", "graph_ref", ref, "error", err)
		return nil
	}
	return refExec.GraphJSON
}

func recordSubFailure(ctx context.Context, ec *Context, nodeID, nodeLabel, msg string) {
	var zero int64
	ec.appendNodeExecution(ctx, &models.NodeExecution{
		NodeID:          nodeID,
		NodeType:        graph.NodeTypeSubworkflow,
		NodeLabel:       nodeLabel,
		Status:          models.NodeFailed,
		ResponseData:    mustJSON(map[string]any{"error": msg}),
		ErrorMessage:    &msg,
		ExecutionTimeMS: &zero,
	})
}

func (ec *Context) upsertChildExecution(ctx context.Context, id, name string, status models.ExecutionStatus, currentNode string, state State, graphJSON json.RawMessage) {
	parentID := ec.ExecutionID
	var currentNodePtr *string
	if currentNode != "" {
		currentNodePtr = &currentNode
	}

	err := ec.Ledger.Executions.Upsert(ctx, &models.WorkflowExecution{
		ID:                id,
		WorkflowName:      name,
		Status:            status,
		CurrentNodeID:     currentNodePtr,
		StateData:         mustJSON(state),
		GraphJSON:         graphJSON,
		ParentExecutionID: &parentID,
	})
	if err != nil {
		ec.Log.Error("failed to persist child execution", "sub_execution_id", id, "error", err)
	}
}

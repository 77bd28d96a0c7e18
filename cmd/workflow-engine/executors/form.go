package executors

import (
	"context"

	"github.com/dynaflow/engine/cmd/workflow-engine/graph"
	"github.com/dynaflow/engine/common/models"
)

// NewFormExecutor builds the executor for a form node. Forms are the only
// suspension point: the executor records a paused attempt and plants the
// pause marker; the runtime halts traversal when it sees the marker.
func NewFormExecutor(node *graph.Node, ec *Context) RunFunc {
	nodeID := node.ID
	nodeLabel := node.Label()
	formSchema := node.Data["schema"]

	return func(ctx context.Context, state State) State {
		var zero int64
		ec.appendNodeExecution(ctx, &models.NodeExecution{
			NodeID:          nodeID,
			NodeType:        graph.NodeTypeForm,
			NodeLabel:       nodeLabel,
			Status:          models.NodePaused,
			RequestData:     mustJSON(map[string]any{"form_schema": formSchema}),
			ExecutionTimeMS: &zero,
		})

		state[PauseKey] = map[string]any{
			"node_id":      nodeID,
			"execution_id": ec.ExecutionID,
			"form_schema":  formSchema,
		}
		return state
	}
}

package executors

import (
	"context"
	"maps"
	"time"

	"github.com/dynaflow/engine/cmd/workflow-engine/graph"
	"github.com/dynaflow/engine/common/models"
)

// Rule is one condition/action pair of a decision node
type Rule struct {
	Condition string
	Action    map[string]any
}

// NewDecisionExecutor builds the executor for a decision node: evaluate
// rules in order against a copy of the state, merging each matching rule's
// action key-wise (last write wins), then optionally run the script block
// and adopt its final state binding. Evaluation errors are swallowed; this
// executor never fails the workflow.
func NewDecisionExecutor(node *graph.Node, ec *Context) RunFunc {
	rules := parseRules(node.Data["rules"])
	scriptSource, _ := node.Data["script"].(string)

	nodeID := node.ID
	nodeLabel := node.Label()

	return func(ctx context.Context, state State) State {
		start := time.Now()

		newState := maps.Clone(state)
		if newState == nil {
			newState = State{}
		}

		actionsTaken := make([]map[string]any, 0, len(rules))
		for _, rule := range rules {
			if rule.Condition == "" {
				continue
			}
			if !ec.Conditions.Truthy(rule.Condition, newState) {
				continue
			}
			for k, v := range rule.Action {
				newState[k] = v
			}
			actionsTaken = append(actionsTaken, map[string]any{
				"condition": rule.Condition,
				"action":    rule.Action,
			})
		}

		if scriptSource != "" {
			newState = ec.Scripts.Exec(scriptSource, newState)
		}

		execTime := time.Since(start).Milliseconds()

		ec.appendNodeExecution(ctx, &models.NodeExecution{
			NodeID:    nodeID,
			NodeType:  graph.NodeTypeDecision,
			NodeLabel: nodeLabel,
			Status:    models.NodeCompleted,
			RequestData: mustJSON(map[string]any{
				"rules":  node.Data["rules"],
				"script": scriptSource,
			}),
			ResponseData:    mustJSON(map[string]any{"actions_taken": actionsTaken}),
			ExecutionTimeMS: &execTime,
		})

		return newState
	}
}

func parseRules(raw any) []Rule {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	rules := make([]Rule, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rule := Rule{}
		rule.Condition, _ = entry["condition"].(string)
		if action, ok := entry["action"].(map[string]any); ok {
			rule.Action = action
		}
		rules = append(rules, rule)
	}
	return rules
}

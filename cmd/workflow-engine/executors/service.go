package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dynaflow/engine/cmd/workflow-engine/graph"
	"github.com/dynaflow/engine/cmd/workflow-engine/resolver"
	"github.com/dynaflow/engine/common/models"
)

// Mapping copies a value from the execution state into the outbound payload
type Mapping struct {
	Source    string
	Target    string
	Transform string
}

// NewServiceExecutor builds the executor for a service node: render the
// request template against the state, apply mappings, perform the HTTP
// call, record the attempt and the service metrics, and store the outcome
// under the node's state slot. A failed call never aborts the workflow.
func NewServiceExecutor(node *graph.Node, ec *Context) RunFunc {
	url, _ := node.Data["url"].(string)

	method := "POST"
	if m, ok := node.Data["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	// Keep the template as raw JSON; unmarshalling per run gives each
	// invocation its own deep copy.
	requestTemplate := node.Data["request"]
	if requestTemplate == nil {
		requestTemplate = map[string]any{}
	}
	templateJSON := mustJSON(requestTemplate)

	mappings := parseMappings(node.Data["mappings"])

	nodeID := node.ID
	nodeLabel := node.Label()
	log := ec.Log.WithExecutionID(ec.ExecutionID).WithNodeID(nodeID)

	return func(ctx context.Context, state State) State {
		start := time.Now()

		var payload any
		if err := json.Unmarshal(templateJSON, &payload); err != nil {
			payload = map[string]any{}
		}
		payload = resolver.Render(payload, state)

		// Apply explicit mappings in order
		for _, m := range mappings {
			val, ok := resolver.DeepGet(state, m.Source)
			if !ok {
				continue
			}
			payload = resolver.SetPath(payload, m.Target, applyTransform(m.Transform, val))
		}

		response, errMsg, success := doRequest(ctx, ec.HTTPClient, method, url, payload)
		execTime := time.Since(start).Milliseconds()

		status := models.NodeCompleted
		if !success {
			status = models.NodeFailed
			log.Warn("service call failed", "url", url, "error", response)
		}

		ec.appendNodeExecution(ctx, &models.NodeExecution{
			NodeID:          nodeID,
			NodeType:        graph.NodeTypeService,
			NodeLabel:       nodeLabel,
			Status:          status,
			RequestData:     mustJSON(payload),
			ResponseData:    mustJSON(response),
			ErrorMessage:    errMsg,
			ExecutionTimeMS: &execTime,
		})

		if err := ec.Ledger.ServiceMetrics.Update(ctx, nodeID, success, execTime); err != nil {
			log.Error("failed to update service metrics", "error", err)
		}

		state[nodeID] = map[string]any{
			"request":  payload,
			"response": response,
			"_metrics": map[string]any{
				"last_exec_ms": execTime,
				"success":      success,
			},
		}
		return state
	}
}

// doRequest performs the outbound call. 2xx with a JSON body is a success;
// everything else (non-2xx, unparseable body, transport error, timeout)
// yields {error: …} and success=false.
func doRequest(ctx context.Context, client *http.Client, method, url string, payload any) (response any, errMsg *string, success bool) {
	body, err := json.Marshal(payload)
	if err != nil {
		return errResponse(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return errResponse(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errResponse(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errResponse(err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errResponse(string(respBody))
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return errResponse(err.Error())
	}

	return parsed, nil, true
}

func errResponse(msg string) (any, *string, bool) {
	return map[string]any{"error": msg}, &msg, false
}

func applyTransform(transform string, val any) any {
	switch transform {
	case "upper":
		return strings.ToUpper(resolver.Stringify(val))
	case "lower":
		return strings.ToLower(resolver.Stringify(val))
	case "strip":
		return strings.TrimSpace(resolver.Stringify(val))
	default:
		return val
	}
}

func parseMappings(raw any) []Mapping {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	mappings := make([]Mapping, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		m := Mapping{}
		m.Source, _ = entry["source"].(string)
		m.Target, _ = entry["target"].(string)
		m.Transform, _ = entry["transform"].(string)
		if m.Source == "" || m.Target == "" {
			continue
		}
		mappings = append(mappings, m)
	}
	return mappings
}

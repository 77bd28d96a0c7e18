package executors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaflow/engine/cmd/workflow-engine/condition"
	"github.com/dynaflow/engine/cmd/workflow-engine/graph"
	"github.com/dynaflow/engine/cmd/workflow-engine/script"
	"github.com/dynaflow/engine/common/config"
	"github.com/dynaflow/engine/common/db"
	"github.com/dynaflow/engine/common/logger"
	"github.com/dynaflow/engine/common/models"
	"github.com/dynaflow/engine/common/repository"
)

// newTestContext builds an executor context over a throwaway ledger with a
// pre-created execution row
func newTestContext(t *testing.T, scriptsEnabled bool) *Context {
	t.Helper()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Path:        filepath.Join(t.TempDir(), "ledger.db"),
			BusyTimeout: time.Second,
			MaxConns:    1,
		},
	}
	log := logger.New("error", "console")

	database, err := db.New(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(context.Background()))

	ledger := repository.NewLedger(database)

	executionID := uuid.New().String()
	require.NoError(t, ledger.Executions.Upsert(context.Background(), &models.WorkflowExecution{
		ID:           executionID,
		WorkflowName: "test",
		Status:       models.StatusRunning,
		StateData:    json.RawMessage(`{}`),
		GraphJSON:    json.RawMessage(`{"nodes":[],"edges":[]}`),
	}))

	return &Context{
		ExecutionID: executionID,
		Ledger:      ledger,
		Conditions:  condition.NewEvaluator(log),
		Scripts:     script.NewRunner(scriptsEnabled, time.Second, log),
		HTTPClient:  &http.Client{Timeout: 5 * time.Second},
		Log:         log,
	}
}

func TestServiceExecutorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello ada", body["greeting"])
		assert.Equal(t, "ADA", body["user"].(map[string]any)["name"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "created"})
	}))
	t.Cleanup(srv.Close)

	ec := newTestContext(t, false)
	node := &graph.Node{
		ID:   "create_user",
		Type: graph.NodeTypeService,
		Data: map[string]any{
			"url":     srv.URL,
			"request": map[string]any{"greeting": "hello {input.name}"},
			"mappings": []any{
				map[string]any{"source": "input.name", "target": "user.name", "transform": "upper"},
			},
		},
	}

	run := NewServiceExecutor(node, ec)
	state := run(context.Background(), State{"input": map[string]any{"name": "ada"}})

	slot := state["create_user"].(map[string]any)
	response := slot["response"].(map[string]any)
	assert.Equal(t, "created", response["status"])

	metrics := slot["_metrics"].(map[string]any)
	assert.Equal(t, true, metrics["success"])

	// Ledger: completed attempt plus a success metric
	nodes, err := ec.Ledger.NodeExecutions.ListByExecution(context.Background(), ec.ExecutionID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, models.NodeCompleted, nodes[0].Status)
	assert.Equal(t, graph.NodeTypeService, nodes[0].NodeType)

	metric, err := ec.Ledger.ServiceMetrics.GetByNodeID(context.Background(), "create_user")
	require.NoError(t, err)
	assert.Equal(t, int64(1), metric.TotalCalls)
	assert.Equal(t, int64(1), metric.Successes)
	assert.Equal(t, metric.TotalCalls, metric.Successes+metric.Failures)
}

func TestServiceExecutorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	ec := newTestContext(t, false)
	node := &graph.Node{
		ID:   "flaky",
		Type: graph.NodeTypeService,
		Data: map[string]any{"url": srv.URL},
	}

	state := NewServiceExecutor(node, ec)(context.Background(), State{})

	slot := state["flaky"].(map[string]any)
	response := slot["response"].(map[string]any)
	assert.Contains(t, response["error"], "upstream exploded")
	metrics := slot["_metrics"].(map[string]any)
	assert.Equal(t, false, metrics["success"])

	nodes, err := ec.Ledger.NodeExecutions.ListByExecution(context.Background(), ec.ExecutionID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, models.NodeFailed, nodes[0].Status)
	require.NotNil(t, nodes[0].ErrorMessage)

	metric, err := ec.Ledger.ServiceMetrics.GetByNodeID(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, int64(1), metric.Failures)
}

func TestServiceExecutorNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	t.Cleanup(srv.Close)

	ec := newTestContext(t, false)
	node := &graph.Node{
		ID:   "html",
		Type: graph.NodeTypeService,
		Data: map[string]any{"url": srv.URL},
	}

	state := NewServiceExecutor(node, ec)(context.Background(), State{})

	slot := state["html"].(map[string]any)
	metrics := slot["_metrics"].(map[string]any)
	assert.Equal(t, false, metrics["success"])
}

func TestDecisionExecutorRules(t *testing.T) {
	ec := newTestContext(t, false)
	node := &graph.Node{
		ID:   "grade",
		Type: graph.NodeTypeDecision,
		Data: map[string]any{
			"rules": []any{
				map[string]any{"condition": "input.score >= 60", "action": map[string]any{"result": "pass"}},
				map[string]any{"condition": "input.score >= 90", "action": map[string]any{"result": "distinction", "honors": true}},
				map[string]any{"condition": "input.score < 0", "action": map[string]any{"result": "invalid"}},
			},
		},
	}

	state := NewDecisionExecutor(node, ec)(context.Background(), State{
		"input": map[string]any{"score": float64(95)},
	})

	// Both matching rules fired in order, the later overwriting the earlier
	assert.Equal(t, "distinction", state["result"])
	assert.Equal(t, true, state["honors"])

	nodes, err := ec.Ledger.NodeExecutions.ListByExecution(context.Background(), ec.ExecutionID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, models.NodeCompleted, nodes[0].Status)

	var response map[string]any
	require.NoError(t, json.Unmarshal(nodes[0].ResponseData, &response))
	assert.Len(t, response["actions_taken"], 2)
}

func TestDecisionExecutorDoesNotMutateInputState(t *testing.T) {
	ec := newTestContext(t, false)
	node := &graph.Node{
		ID:   "tag",
		Type: graph.NodeTypeDecision,
		Data: map[string]any{
			"rules": []any{
				map[string]any{"condition": "true", "action": map[string]any{"tagged": true}},
			},
		},
	}

	original := State{"input": map[string]any{}}
	next := NewDecisionExecutor(node, ec)(context.Background(), original)

	assert.Equal(t, true, next["tagged"])
	assert.NotContains(t, original, "tagged")
}

func TestDecisionExecutorScriptDisabled(t *testing.T) {
	ec := newTestContext(t, false)
	node := &graph.Node{
		ID:   "scripted",
		Type: graph.NodeTypeDecision,
		Data: map[string]any{
			"script": "state.injected = true",
		},
	}

	state := NewDecisionExecutor(node, ec)(context.Background(), State{})
	assert.NotContains(t, state, "injected")
}

func TestFormExecutorPauses(t *testing.T) {
	ec := newTestContext(t, false)
	schema := map[string]any{"fields": []any{"approved", "comment"}}
	node := &graph.Node{
		ID:   "review",
		Type: graph.NodeTypeForm,
		Data: map[string]any{"schema": schema},
	}

	state := NewFormExecutor(node, ec)(context.Background(), State{})

	pause, ok := state[PauseKey].(map[string]any)
	require.True(t, ok, "pause marker missing")
	assert.Equal(t, "review", pause["node_id"])
	assert.Equal(t, ec.ExecutionID, pause["execution_id"])
	assert.Equal(t, schema, pause["form_schema"])

	nodes, err := ec.Ledger.NodeExecutions.ListByExecution(context.Background(), ec.ExecutionID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, models.NodePaused, nodes[0].Status)
	assert.Nil(t, nodes[0].CompletedAt)
}

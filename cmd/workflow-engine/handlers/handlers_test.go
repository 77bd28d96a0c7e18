package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaflow/engine/cmd/workflow-engine/handlers"
	"github.com/dynaflow/engine/cmd/workflow-engine/routes"
	"github.com/dynaflow/engine/cmd/workflow-engine/runtime"
	"github.com/dynaflow/engine/common/cache"
	"github.com/dynaflow/engine/common/config"
	"github.com/dynaflow/engine/common/db"
	"github.com/dynaflow/engine/common/logger"
	"github.com/dynaflow/engine/common/repository"
)

// newTestServer wires the full handler stack over a throwaway ledger
func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Path:        filepath.Join(t.TempDir(), "ledger.db"),
			BusyTimeout: time.Second,
			MaxConns:    1,
		},
		Engine: config.EngineConfig{
			HTTPTimeout: 5 * time.Second,
			MaxSteps:    25,
		},
	}
	log := logger.New("error", "console")

	database, err := db.New(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(context.Background()))

	ledger := repository.NewLedger(database)
	rt := runtime.New(ledger, cfg, log)
	flowCache := cache.NewMemoryCache(30*time.Second, log)
	t.Cleanup(flowCache.Close)

	e := echo.New()
	routes.RegisterExecutionRoutes(e, handlers.NewExecutionHandler(rt, ledger, log))
	routes.RegisterFlowRoutes(e, handlers.NewFlowHandler(rt, ledger, flowCache, log))
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func decisionGraph() string {
	return `{
		"nodes": [
			{"id": "classify", "type": "decision", "data": {
				"rules": [{"condition": "input.vip == True", "action": {"lane": "fast"}}]
			}}
		],
		"edges": []
	}`
}

func formGraph() string {
	return `{
		"nodes": [
			{"id": "intake", "type": "form", "data": {"schema": {"fields": ["approved"]}}}
		],
		"edges": []
	}`
}

func TestExecuteEndpoint(t *testing.T) {
	e := newTestServer(t)

	rec, body := doJSON(t, e, http.MethodPost, "/execute",
		`{"name": "classify", "graph": `+decisionGraph()+`, "inputs": {"vip": true}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["execution_id"])
	result := body["result"].(map[string]any)
	assert.Equal(t, "fast", result["lane"])
}

func TestExecuteEndpointRejectsMissingGraph(t *testing.T) {
	e := newTestServer(t)

	rec, _ := doJSON(t, e, http.MethodPost, "/execute", `{"inputs": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteEndpointReportsBadGraph(t *testing.T) {
	e := newTestServer(t)

	rec, body := doJSON(t, e, http.MethodPost, "/execute",
		`{"graph": {"nodes": [{"id": "x", "type": "warp"}], "edges": []}}`)
	// Graph-level failures are a snapshot outcome, not a transport error
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestResumeEndpointLifecycle(t *testing.T) {
	e := newTestServer(t)

	rec, body := doJSON(t, e, http.MethodPost, "/execute", `{"graph": `+formGraph()+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "paused", body["status"])
	executionID := body["execution_id"].(string)

	// Wrong ids and non-paused runs are caller errors
	rec, _ = doJSON(t, e, http.MethodPost, "/resume", `{"execution_id": "nope", "form_data": {}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = doJSON(t, e, http.MethodPost, "/resume",
		`{"execution_id": "`+executionID+`", "form_data": {"approved": true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	rec, _ = doJSON(t, e, http.MethodPost, "/resume",
		`{"execution_id": "`+executionID+`", "form_data": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecutionInspectionEndpoints(t *testing.T) {
	e := newTestServer(t)

	_, body := doJSON(t, e, http.MethodPost, "/execute",
		`{"name": "classify", "graph": `+decisionGraph()+`, "inputs": {"vip": false}}`)
	executionID := body["execution_id"].(string)

	rec, body := doJSON(t, e, http.MethodGet, "/executions/"+executionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	exec := body["execution"].(map[string]any)
	assert.Equal(t, "completed", exec["status"])
	nodes := body["node_executions"].([]any)
	require.Len(t, nodes, 1)

	rec, body = doJSON(t, e, http.MethodGet, "/executions/"+executionID+"/nodes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["node_executions"], 1)

	rec, body = doJSON(t, e, http.MethodGet, "/executions?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["executions"], 1)

	rec, _ = doJSON(t, e, http.MethodGet, "/executions/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, e, http.MethodGet, "/metrics/service/never-called", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFlowCatalogLifecycle(t *testing.T) {
	e := newTestServer(t)

	rec, body := doJSON(t, e, http.MethodPost, "/api/flows",
		`{"name": "triage", "graph": `+decisionGraph()+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(1), body["version"])

	// Patch the rule action, producing version 2
	patch := `[{"op": "replace", "path": "/nodes/0/data/rules/0/action/lane", "value": "priority"}]`
	rec, body = doJSON(t, e, http.MethodPatch, "/api/flows/triage", patch)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["version"])

	rec, body = doJSON(t, e, http.MethodGet, "/api/flows/triage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["version"])

	rec, body = doJSON(t, e, http.MethodGet, "/api/flows/triage?version=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["version"])

	rec, body = doJSON(t, e, http.MethodGet, "/api/flows/triage/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["versions"], 2)

	// Execute-by-name runs the latest (patched) version
	rec, body = doJSON(t, e, http.MethodPost, "/api/flows/triage/execute",
		`{"inputs": {"vip": true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	result := body["result"].(map[string]any)
	assert.Equal(t, "priority", result["lane"])

	rec, _ = doJSON(t, e, http.MethodGet, "/api/flows/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, e, http.MethodPost, "/api/flows/unknown/execute", `{"inputs": {}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

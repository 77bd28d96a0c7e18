// Package handlers contains the echo adapters over the runtime and the
// execution ledger. Handlers stay thin: decode, delegate, map errors to
// HTTP statuses.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dynaflow/engine/cmd/workflow-engine/runtime"
	"github.com/dynaflow/engine/common/logger"
	"github.com/dynaflow/engine/common/repository"
)

// ExecutionHandler handles execute/resume and execution inspection
type ExecutionHandler struct {
	runtime *runtime.Runtime
	ledger  *repository.Ledger
	log     *logger.Logger
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(rt *runtime.Runtime, ledger *repository.Ledger, log *logger.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		runtime: rt,
		ledger:  ledger,
		log:     log,
	}
}

type executeRequest struct {
	Name   string          `json:"name"`
	Graph  json.RawMessage `json:"graph"`
	Inputs map[string]any  `json:"inputs"`
}

// Execute runs a workflow graph document to completion, pause or failure
// POST /execute
func (h *ExecutionHandler) Execute(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Graph) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "graph is required")
	}

	name := req.Name
	if name == "" {
		name = "adhoc"
	}

	snapshot := h.runtime.Execute(c.Request().Context(), req.Graph, req.Inputs, name)
	return c.JSON(http.StatusOK, snapshot)
}

type resumeRequest struct {
	ExecutionID string         `json:"execution_id"`
	FormData    map[string]any `json:"form_data"`
}

// Resume completes a paused execution with a form submission
// POST /resume
func (h *ExecutionHandler) Resume(c echo.Context) error {
	var req resumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ExecutionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "execution_id is required")
	}

	snapshot, err := h.runtime.Resume(c.Request().Context(), req.ExecutionID, req.FormData)
	if err != nil {
		switch {
		case errors.Is(err, runtime.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		case errors.Is(err, runtime.ErrNotPaused):
			return echo.NewHTTPError(http.StatusBadRequest, "execution is not paused")
		default:
			h.log.Error("resume failed", "execution_id", req.ExecutionID, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "resume failed")
		}
	}

	return c.JSON(http.StatusOK, snapshot)
}

// GetExecution returns one execution row with its node execution history
// GET /executions/:id
func (h *ExecutionHandler) GetExecution(c echo.Context) error {
	id := c.Param("id")

	exec, err := h.ledger.Executions.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		}
		h.log.Error("failed to load execution", "execution_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load execution")
	}

	nodes, err := h.ledger.NodeExecutions.ListByExecution(c.Request().Context(), id)
	if err != nil {
		h.log.Error("failed to load node executions", "execution_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load node executions")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"execution":       exec,
		"node_executions": nodes,
	})
}

// ListNodeExecutions returns the node execution history of one execution
// GET /executions/:id/nodes
func (h *ExecutionHandler) ListNodeExecutions(c echo.Context) error {
	id := c.Param("id")

	// The parent row must exist so a typo'd id reads as 404, not an empty list
	if _, err := h.ledger.Executions.GetByID(c.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		}
		h.log.Error("failed to load execution", "execution_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load execution")
	}

	nodes, err := h.ledger.NodeExecutions.ListByExecution(c.Request().Context(), id)
	if err != nil {
		h.log.Error("failed to load node executions", "execution_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load node executions")
	}

	return c.JSON(http.StatusOK, map[string]any{"node_executions": nodes})
}

// ListExecutions returns the most recent executions
// GET /executions?limit=50
func (h *ExecutionHandler) ListExecutions(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	executions, err := h.ledger.Executions.ListRecent(c.Request().Context(), limit)
	if err != nil {
		h.log.Error("failed to list executions", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list executions")
	}

	return c.JSON(http.StatusOK, map[string]any{"executions": executions})
}

// GetServiceMetric returns the aggregated call statistics of a service node
// GET /metrics/service/:node_id
func (h *ExecutionHandler) GetServiceMetric(c echo.Context) error {
	nodeID := c.Param("node_id")

	metric, err := h.ledger.ServiceMetrics.GetByNodeID(c.Request().Context(), nodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no metrics for node")
		}
		h.log.Error("failed to load service metric", "node_id", nodeID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load service metric")
	}

	return c.JSON(http.StatusOK, metric)
}

// ListFormResponses returns the form submissions of one execution
// GET /executions/:id/forms
func (h *ExecutionHandler) ListFormResponses(c echo.Context) error {
	id := c.Param("id")

	responses, err := h.ledger.FormResponses.ListByExecution(c.Request().Context(), id)
	if err != nil {
		h.log.Error("failed to load form responses", "execution_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load form responses")
	}

	return c.JSON(http.StatusOK, map[string]any{"form_responses": responses})
}

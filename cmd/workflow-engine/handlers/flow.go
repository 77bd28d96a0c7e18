package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/labstack/echo/v4"

	"github.com/dynaflow/engine/cmd/workflow-engine/runtime"
	"github.com/dynaflow/engine/common/cache"
	"github.com/dynaflow/engine/common/logger"
	"github.com/dynaflow/engine/common/models"
	"github.com/dynaflow/engine/common/repository"
)

// FlowHandler handles the versioned flow catalog: saving named graph
// documents, revising them with JSON patches and executing them by name
type FlowHandler struct {
	runtime *runtime.Runtime
	ledger  *repository.Ledger
	cache   *cache.MemoryCache
	log     *logger.Logger
}

// NewFlowHandler creates a new flow handler
func NewFlowHandler(rt *runtime.Runtime, ledger *repository.Ledger, flowCache *cache.MemoryCache, log *logger.Logger) *FlowHandler {
	return &FlowHandler{
		runtime: rt,
		ledger:  ledger,
		cache:   flowCache,
		log:     log,
	}
}

func flowCacheKey(name string) string {
	return "flow:latest:" + name
}

type saveFlowRequest struct {
	Name  string          `json:"name"`
	Graph json.RawMessage `json:"graph"`
}

// SaveFlow stores a new version of a named flow
// POST /api/flows
func (h *FlowHandler) SaveFlow(c echo.Context) error {
	var req saveFlowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if len(req.Graph) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "graph is required")
	}

	version, err := h.ledger.Flows.Save(c.Request().Context(), req.Name, req.Graph)
	if err != nil {
		h.log.Error("failed to save flow", "name", req.Name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save flow")
	}

	h.cache.Delete(flowCacheKey(req.Name))
	h.log.Info("flow saved", "name", req.Name, "version", version)

	return c.JSON(http.StatusCreated, map[string]any{
		"name":    req.Name,
		"version": version,
	})
}

// GetFlow returns a flow document, latest by default or a specific version
// GET /api/flows/:name?version=N
func (h *FlowHandler) GetFlow(c echo.Context) error {
	name := c.Param("name")

	if raw := c.QueryParam("version"); raw != "" {
		version, err := strconv.Atoi(raw)
		if err != nil || version < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "version must be a positive integer")
		}
		flow, err := h.ledger.Flows.GetVersion(c.Request().Context(), name, version)
		if err != nil {
			return h.flowError(name, err)
		}
		return c.JSON(http.StatusOK, flow)
	}

	flow, err := h.latestFlow(c, name)
	if err != nil {
		return h.flowError(name, err)
	}
	return c.JSON(http.StatusOK, flow)
}

// ListFlowVersions lists all versions of a named flow, newest first
// GET /api/flows/:name/versions
func (h *FlowHandler) ListFlowVersions(c echo.Context) error {
	name := c.Param("name")

	versions, err := h.ledger.Flows.ListVersions(c.Request().Context(), name)
	if err != nil {
		h.log.Error("failed to list flow versions", "name", name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list flow versions")
	}
	if len(versions) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "flow not found")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"name":     name,
		"versions": versions,
	})
}

// PatchFlow applies an RFC 6902 patch to the latest version of a flow and
// stores the result as a new version
// PATCH /api/flows/:name
func (h *FlowHandler) PatchFlow(c echo.Context) error {
	name := c.Param("name")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	patch, err := jsonpatch.DecodePatch(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON patch")
	}

	flow, err := h.ledger.Flows.GetLatest(c.Request().Context(), name)
	if err != nil {
		return h.flowError(name, err)
	}

	patched, err := patch.Apply(flow.Data)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "patch does not apply: "+err.Error())
	}

	version, err := h.ledger.Flows.Save(c.Request().Context(), name, patched)
	if err != nil {
		h.log.Error("failed to save patched flow", "name", name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save flow")
	}

	h.cache.Delete(flowCacheKey(name))
	h.log.Info("flow patched", "name", name, "version", version)

	return c.JSON(http.StatusOK, map[string]any{
		"name":    name,
		"version": version,
	})
}

type executeFlowRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// ExecuteFlow runs the latest version of a named flow
// POST /api/flows/:name/execute
func (h *FlowHandler) ExecuteFlow(c echo.Context) error {
	name := c.Param("name")

	var req executeFlowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	flow, err := h.latestFlow(c, name)
	if err != nil {
		return h.flowError(name, err)
	}

	snapshot := h.runtime.Execute(c.Request().Context(), flow.Data, req.Inputs, name)
	return c.JSON(http.StatusOK, snapshot)
}

// latestFlow serves the latest version through the TTL cache
func (h *FlowHandler) latestFlow(c echo.Context, name string) (*models.Flow, error) {
	key := flowCacheKey(name)

	if cached, ok := h.cache.Get(key); ok {
		var flow models.Flow
		if err := json.Unmarshal(cached, &flow); err == nil {
			return &flow, nil
		}
	}

	flow, err := h.ledger.Flows.GetLatest(c.Request().Context(), name)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(flow); err == nil {
		h.cache.Set(key, encoded)
	}

	return flow, nil
}

func (h *FlowHandler) flowError(name string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "flow not found")
	}
	h.log.Error("failed to load flow", "name", name, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to load flow")
}

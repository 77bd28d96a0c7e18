package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/dynaflow/engine/cmd/workflow-engine/handlers"
)

// RegisterFlowRoutes registers the versioned flow catalog routes
func RegisterFlowRoutes(e *echo.Echo, h *handlers.FlowHandler) {
	flows := e.Group("/api/flows")
	{
		flows.POST("", h.SaveFlow)
		flows.GET("/:name", h.GetFlow)
		flows.GET("/:name/versions", h.ListFlowVersions)
		flows.PATCH("/:name", h.PatchFlow)
		flows.POST("/:name/execute", h.ExecuteFlow)
	}
}

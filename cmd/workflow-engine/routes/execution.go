// Package routes wires handlers onto the echo router
package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/dynaflow/engine/cmd/workflow-engine/handlers"
)

// RegisterExecutionRoutes registers the execute/resume/inspect routes
func RegisterExecutionRoutes(e *echo.Echo, h *handlers.ExecutionHandler) {
	e.POST("/execute", h.Execute)
	e.POST("/resume", h.Resume)

	executions := e.Group("/executions")
	{
		executions.GET("", h.ListExecutions)
		executions.GET("/:id", h.GetExecution)
		executions.GET("/:id/nodes", h.ListNodeExecutions)
		executions.GET("/:id/forms", h.ListFormResponses)
	}

	e.GET("/metrics/service/:node_id", h.GetServiceMetric)
}

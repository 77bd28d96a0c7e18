package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dynaflow/engine/cmd/workflow-engine/handlers"
	"github.com/dynaflow/engine/cmd/workflow-engine/routes"
	"github.com/dynaflow/engine/cmd/workflow-engine/runtime"
	"github.com/dynaflow/engine/common/cache"
	"github.com/dynaflow/engine/common/config"
	"github.com/dynaflow/engine/common/db"
	"github.com/dynaflow/engine/common/logger"
	"github.com/dynaflow/engine/common/repository"
	"github.com/dynaflow/engine/common/telemetry"
)

const flowCacheTTL = 30 * time.Second

func main() {
	ctx := context.Background()

	cfg, err := config.Load("workflow-engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	database, err := db.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		log.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	ledger := repository.NewLedger(database)
	rt := runtime.New(ledger, cfg, log)
	flowCache := cache.NewMemoryCache(flowCacheTTL, log)
	defer flowCache.Close()

	if cfg.Telemetry.EnablePprof {
		telemetry.New(cfg.Telemetry.PprofPort, log).Start()
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, database)

	routes.RegisterExecutionRoutes(e, handlers.NewExecutionHandler(rt, ledger, log))
	routes.RegisterFlowRoutes(e, handlers.NewFlowHandler(rt, ledger, flowCache, log))

	startServer(e, cfg, log)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, database *db.DB) {
	e.GET("/health", func(c echo.Context) error {
		if err := database.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "workflow-engine",
		})
	})
}

// startServer starts the Echo server on the configured port
func startServer(e *echo.Echo, cfg *config.Config, log *logger.Logger) {
	port := cfg.Service.Port
	log.Info("Starting workflow engine", "port", port)

	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		log.Error("Server error", "error", err)
		os.Exit(1)
	}
}

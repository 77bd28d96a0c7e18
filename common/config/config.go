package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Engine    EngineConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds SQLite settings for the execution ledger
type DatabaseConfig struct {
	Path        string
	BusyTimeout time.Duration
	MaxConns    int
}

// EngineConfig holds workflow interpreter settings
type EngineConfig struct {
	HTTPTimeout   time.Duration // per-call budget for service nodes
	MaxSteps      int           // step budget per graph invocation
	EnableScripts bool          // decision-node script facility kill switch
	ScriptTimeout time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Path:        getEnv("SQLITE_PATH", "workflow.db"),
			BusyTimeout: getEnvDuration("SQLITE_BUSY_TIMEOUT", 5*time.Second),
			MaxConns:    getEnvInt("SQLITE_MAX_CONNS", 10),
		},
		Engine: EngineConfig{
			HTTPTimeout:   getEnvDuration("ENGINE_HTTP_TIMEOUT", 15*time.Second),
			MaxSteps:      getEnvInt("ENGINE_MAX_STEPS", 1000),
			EnableScripts: getEnvBool("ENGINE_ENABLE_SCRIPTS", true),
			ScriptTimeout: getEnvDuration("ENGINE_SCRIPT_TIMEOUT", 5*time.Second),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Engine.MaxSteps < 1 {
		return fmt.Errorf("engine max_steps must be > 0")
	}

	if c.Engine.HTTPTimeout <= 0 {
		return fmt.Errorf("engine http_timeout must be > 0")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

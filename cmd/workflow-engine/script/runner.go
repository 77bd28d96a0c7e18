// Package script runs trusted decision-node scripts. Scripts execute in a
// JavaScript VM with a mutable state binding; enabling the facility is
// equivalent to granting arbitrary code execution, so it can be switched
// off entirely via configuration.
package script

import (
	"time"

	"github.com/dop251/goja"

	"github.com/dynaflow/engine/common/logger"
)

// Runner executes decision-node scripts
type Runner struct {
	enabled bool
	timeout time.Duration
	log     *logger.Logger
}

// NewRunner creates a script runner. When enabled is false every script is
// skipped with a warning.
func NewRunner(enabled bool, timeout time.Duration, log *logger.Logger) *Runner {
	return &Runner{
		enabled: enabled,
		timeout: timeout,
		log:     log,
	}
}

// Exec runs a script with state bound as a mutable variable and returns the
// binding's post-value. Errors and timeouts are logged; the state as it
// stood when the script failed is returned, mirroring the rule that script
// errors never fail the workflow.
func (r *Runner) Exec(source string, state map[string]any) map[string]any {
	if !r.enabled {
		r.log.Warn("script facility disabled, skipping script block")
		return state
	}

	vm := goja.New()
	if err := vm.Set("state", state); err != nil {
		r.log.Error("failed to bind state", "error", err)
		return state
	}

	timer := time.AfterFunc(r.timeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	if _, err := vm.RunString(source); err != nil {
		r.log.Warn("script execution failed", "error", err)
		return state
	}

	// The script may have reassigned the binding wholesale
	if exported, ok := vm.Get("state").Export().(map[string]any); ok {
		return exported
	}
	return state
}

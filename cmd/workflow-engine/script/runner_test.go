package script

import (
	"testing"
	"time"

	"github.com/dynaflow/engine/common/logger"
)

func testRunner(enabled bool) *Runner {
	return NewRunner(enabled, 2*time.Second, logger.New("error", "text"))
}

func TestExec_MutatesState(t *testing.T) {
	r := testRunner(true)

	got := r.Exec("state['y'] = 2", map[string]any{"x": float64(1)})

	if got["x"] != float64(1) {
		t.Errorf("existing key lost: %v", got)
	}
	if got["y"] != int64(2) {
		t.Errorf("y = %v (%T), want 2", got["y"], got["y"])
	}
}

func TestExec_ReassignedBindingIsAdopted(t *testing.T) {
	r := testRunner(true)

	got := r.Exec("state = {replaced: true}", map[string]any{"old": "gone"})

	if got["replaced"] != true {
		t.Errorf("reassigned state not adopted: %v", got)
	}
	if _, ok := got["old"]; ok {
		t.Errorf("old state leaked through: %v", got)
	}
}

func TestExec_ErrorPreservesState(t *testing.T) {
	r := testRunner(true)
	state := map[string]any{"k": "v"}

	got := r.Exec("throw new Error('boom')", state)

	if got["k"] != "v" {
		t.Errorf("state not preserved on error: %v", got)
	}
}

func TestExec_DisabledSkipsScript(t *testing.T) {
	r := testRunner(false)
	state := map[string]any{"k": "v"}

	got := r.Exec("state['k'] = 'changed'", state)

	if got["k"] != "v" {
		t.Errorf("disabled runner must not execute scripts: %v", got)
	}
}

func TestExec_TimeoutInterrupts(t *testing.T) {
	r := NewRunner(true, 50*time.Millisecond, logger.New("error", "text"))
	state := map[string]any{"k": "v"}

	got := r.Exec("while (true) {}", state)

	if got["k"] != "v" {
		t.Errorf("state not preserved on timeout: %v", got)
	}
}

// Package condition evaluates routing and rule expressions with CEL.
// Expressions see two names: state (the full execution state) and input
// (state["input"] if present, else an empty mapping).
package condition

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/dynaflow/engine/common/logger"
)

// Evaluator evaluates conditions using CEL (Common Expression Language)
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
	log   *logger.Logger
}

// NewEvaluator creates a new condition evaluator with caching
func NewEvaluator(log *logger.Logger) *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
		log:   log,
	}
}

// Truthy evaluates a condition against the execution state. Unknown names,
// unsupported constructs and runtime errors are logged and count as false;
// routing never fails on a bad expression.
func (e *Evaluator) Truthy(expr string, state map[string]any) bool {
	result, err := e.Evaluate(expr, state)
	if err != nil {
		e.log.Warn("condition evaluation failed", "expression", expr, "error", err)
		return false
	}
	return result
}

// Evaluate evaluates a condition and returns the boolean result
func (e *Evaluator) Evaluate(expr string, state map[string]any) (bool, error) {
	// Graphs authored against the original engine use python-style
	// operators and literals; translate them before compiling.
	normalizedExpr := normalize(expr)

	// Check cache first
	e.mu.RLock()
	prg, exists := e.cache[normalizedExpr]
	e.mu.RUnlock()

	if !exists {
		// Compile and cache
		var err error
		prg, err = e.compile(normalizedExpr)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[normalizedExpr] = prg
		e.mu.Unlock()
	}

	input, ok := state["input"].(map[string]any)
	if !ok {
		input = map[string]any{}
	}

	// Evaluate against live state; programs are cached but bindings are not
	out, _, err := prg.Eval(map[string]any{
		"state": state,
		"input": input,
	})

	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

// compile compiles a CEL expression
func (e *Evaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("state", cel.DynType),
		cel.Variable("input", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	return prg, nil
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// wordSubstitutions maps python-style identifiers to their CEL equivalents
var wordSubstitutions = map[string]string{
	"and":   "&&",
	"or":    "||",
	"not":   "!",
	"True":  "true",
	"False": "false",
	"None":  "null",
}

// normalize rewrites python-style tokens outside string literals. Quoted
// segments (single or double) are copied verbatim.
func normalize(expr string) string {
	var b strings.Builder
	b.Grow(len(expr))

	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]

		// Copy string literals untouched
		if r == '\'' || r == '"' {
			quote := r
			b.WriteRune(r)
			i++
			for i < len(runes) {
				b.WriteRune(runes[i])
				if runes[i] == quote && runes[i-1] != '\\' {
					i++
					break
				}
				i++
			}
			continue
		}

		if isIdentStart(r) {
			start := i
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			if replacement, ok := wordSubstitutions[word]; ok {
				b.WriteString(replacement)
			} else {
				b.WriteString(word)
			}
			continue
		}

		b.WriteRune(r)
		i++
	}

	return b.String()
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

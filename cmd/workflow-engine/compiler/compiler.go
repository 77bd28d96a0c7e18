// Package compiler turns a workflow graph document into a runnable state
// machine: executors registered per node, conditional routers per source
// group, entry and terminal anchors.
package compiler

import (
	"context"
	"fmt"

	"github.com/dynaflow/engine/cmd/workflow-engine/executors"
	"github.com/dynaflow/engine/cmd/workflow-engine/graph"
)

// End is the terminal sentinel; traversal stops when it is reached
const End = "__end__"

// router picks the successor of a source node from the current state.
// An empty return means no successor (the branch terminates).
type router func(state executors.State) string

// Machine is a compiled, ready-to-run workflow graph
type Machine struct {
	entry      string
	nodes      map[string]executors.RunFunc
	successors map[string]string
	routers    map[string]router
	maxSteps   int
}

// Compile materializes a graph into a machine bound to one execution
// context. Unknown node types and structurally broken edges are fatal
// compilation errors.
func Compile(g *graph.Graph, ec *executors.Context, maxSteps int) (*Machine, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	registry := executors.Registry()

	m := &Machine{
		entry:      g.EntryNodeID(),
		nodes:      make(map[string]executors.RunFunc, len(g.Nodes)),
		successors: make(map[string]string),
		routers:    make(map[string]router),
		maxSteps:   maxSteps,
	}

	// Register nodes through the per-type executor factories
	for i := range g.Nodes {
		node := &g.Nodes[i]
		factory, ok := registry[node.Type]
		if !ok {
			return nil, fmt.Errorf("unknown node type: %s", node.Type)
		}
		m.nodes[node.ID] = factory(node, ec)
	}

	// Group edges by source; a group with at least one guarded edge gets a
	// conditional router, everything else a plain successor
	for source, edges := range g.EdgesBySource() {
		conditional := false
		for _, e := range edges {
			if e.Condition != nil {
				conditional = true
				break
			}
		}

		if conditional {
			m.routers[source] = makeRouter(edges, ec)
		} else {
			// The runtime is strictly sequential; the first edge in
			// document order is the successor
			if len(edges) > 1 {
				ec.Log.Debug("node has multiple unconditional edges, following the first",
					"source", source, "dropped", len(edges)-1)
			}
			m.successors[source] = edges[0].Target
		}
	}

	// Anchor the last node to the terminal sentinel
	if last := g.LastNodeID(); last != "" {
		if _, ok := m.successors[last]; !ok {
			if _, ok := m.routers[last]; !ok {
				m.successors[last] = End
			}
		}
	}

	return m, nil
}

// makeRouter builds the conditional router for one source group. Guarded
// edges are evaluated in document order and the first truthy condition
// wins; if none match, the first unguarded edge is the fallback; with no
// fallback the branch terminates.
func makeRouter(edges []graph.Edge, ec *executors.Context) router {
	return func(state executors.State) string {
		for _, e := range edges {
			if e.Condition == nil {
				continue
			}
			if ec.Conditions.Truthy(*e.Condition, state) {
				return e.Target
			}
		}
		for _, e := range edges {
			if e.Condition == nil {
				return e.Target
			}
		}
		return ""
	}
}

// Invoke drives the machine from its entry point
func (m *Machine) Invoke(ctx context.Context, state executors.State) (executors.State, error) {
	return m.InvokeFrom(ctx, m.entry, state)
}

// InvokeFrom drives the machine from an arbitrary node. Traversal halts on
// the terminal sentinel, on a missing successor, on suspension, or when the
// step budget is exhausted (back-edges are structurally legal, so runaway
// loops must fail rather than spin).
func (m *Machine) InvokeFrom(ctx context.Context, start string, state executors.State) (executors.State, error) {
	current := start
	steps := 0

	for current != "" && current != End {
		fn, ok := m.nodes[current]
		if !ok {
			return state, fmt.Errorf("no executor registered for node: %s", current)
		}

		steps++
		if steps > m.maxSteps {
			return state, fmt.Errorf("step budget exceeded after %d steps at node %s", m.maxSteps, current)
		}

		state = fn(ctx, state)

		if _, paused := state[executors.PauseKey]; paused {
			return state, nil
		}

		current = m.Successor(current, state)
	}

	return state, nil
}

// Successor resolves the next node after nodeID for the given state.
// Conditions are evaluated fresh on every call.
func (m *Machine) Successor(nodeID string, state executors.State) string {
	if route, ok := m.routers[nodeID]; ok {
		return route(state)
	}
	return m.successors[nodeID]
}

package graph

import (
	"encoding/json"
	"fmt"
)

// Node type constants
const (
	NodeTypeService     = "service"
	NodeTypeDecision    = "decision"
	NodeTypeForm        = "form"
	NodeTypeSubworkflow = "subworkflow"
)

// Graph is the workflow definition document: an ordered node list plus
// directed edges. The first node is the entry point and the last node is
// anchored to the terminal sentinel by the compiler.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a typed vertex; the shape of Data depends on Type
type Node struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Edge is a directed link between nodes, optionally guarded by an
// expression. A nil Condition marks an unconditional edge; the distinction
// matters for router fallbacks, so the field is a pointer.
type Edge struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Condition *string `json:"condition,omitempty"`
}

// Parse decodes and validates a workflow graph document
func Parse(raw json.RawMessage) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to parse graph: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	return &g, nil
}

// Validate checks structural invariants: unique node ids and edges that
// reference existing nodes
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		if node.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id: %s", node.ID)
		}
		seen[node.ID] = true
	}

	for _, edge := range g.Edges {
		if !seen[edge.Source] {
			return fmt.Errorf("edge references non-existent node: %s", edge.Source)
		}
		if !seen[edge.Target] {
			return fmt.Errorf("edge references non-existent node: %s", edge.Target)
		}
	}

	return nil
}

// EntryNodeID returns the id of the first node, or "" for an empty graph
func (g *Graph) EntryNodeID() string {
	if len(g.Nodes) == 0 {
		return ""
	}
	return g.Nodes[0].ID
}

// LastNodeID returns the id of the last node, or "" for an empty graph
func (g *Graph) LastNodeID() string {
	if len(g.Nodes) == 0 {
		return ""
	}
	return g.Nodes[len(g.Nodes)-1].ID
}

// Label returns the node's display label, falling back to its id
func (n *Node) Label() string {
	if label, ok := n.Data["label"].(string); ok && label != "" {
		return label
	}
	return n.ID
}

// EdgesBySource groups edges by source node preserving document order
func (g *Graph) EdgesBySource() map[string][]Edge {
	grouped := make(map[string][]Edge)
	for _, edge := range g.Edges {
		grouped[edge.Source] = append(grouped[edge.Source], edge)
	}
	return grouped
}

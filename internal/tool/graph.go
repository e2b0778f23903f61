package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"quantia/internal/domain"
)

const graphMaxHops = 2

// GraphTool explains how clinical entities relate inside the owner's
// knowledge graph. It pulls the neighborhood around the owner's root node
// and reports, per requested entity, the matching nodes and their labels.
// A missing or unreachable graph backend is a contained condition: the
// assistant simply tells the model the graph is not available.
type GraphTool struct {
	graph domain.GraphStore
}

func NewGraphTool(graph domain.GraphStore) *GraphTool {
	return &GraphTool{graph: graph}
}

func (t *GraphTool) Name() string { return "graph_explain_relationship" }

func (t *GraphTool) Description() string {
	return "Explore how clinical entities (conditions, treatments, findings) are connected in the patient's knowledge graph."
}

func (t *GraphTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"entities": {Type: "array", Description: "Entities to relate, e.g. ['lupus', 'proteinuria', 'thrombosis']."},
	}, []string{"entities"})
}

func (t *GraphTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	entities := ArgsStringSlice(args, "entities")
	if len(entities) == 0 {
		return "Error: 'entities' argument is required.", nil
	}
	if t.graph == nil {
		return "The knowledge graph is unavailable; answer from other sources.", nil
	}

	nodes, err := t.graph.Neighborhood(ctx, ownerID, graphMaxHops)
	if err != nil {
		return fmt.Sprintf("The knowledge graph is unavailable (%s); answer from other sources.", err.Error()), nil
	}
	if len(nodes) == 0 {
		return "The knowledge graph holds no data for this patient yet.", nil
	}

	var b strings.Builder
	labelCounts := make(map[string]int)
	for _, n := range nodes {
		for _, l := range n.Labels {
			labelCounts[l]++
		}
	}

	matchedAny := false
	for _, entity := range entities {
		matches := matchNodes(nodes, entity)
		if len(matches) == 0 {
			fmt.Fprintf(&b, "Entity %q: no related nodes found.\n", entity)
			continue
		}
		matchedAny = true
		fmt.Fprintf(&b, "Entity %q is connected to:\n", entity)
		for _, m := range matches {
			fmt.Fprintf(&b, "  - %s\n", m)
		}
	}

	if !matchedAny {
		return "None of the requested entities appear in the patient's knowledge graph.", nil
	}

	labels := make([]string, 0, len(labelCounts))
	for l := range labelCounts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s: %d", l, labelCounts[l]))
	}
	fmt.Fprintf(&b, "Neighborhood composition (%d nodes): %s.", len(nodes), strings.Join(parts, ", "))
	return b.String(), nil
}

// matchNodes describes every node whose name or description property
// mentions the entity, case-insensitively.
func matchNodes(nodes []domain.GraphNode, entity string) []string {
	needle := strings.ToLower(strings.TrimSpace(entity))
	if needle == "" {
		return nil
	}
	var out []string
	for _, n := range nodes {
		if !nodeMentions(n, needle) {
			continue
		}
		name := nodeName(n)
		label := "Node"
		if len(n.Labels) > 0 {
			label = n.Labels[0]
		}
		out = append(out, fmt.Sprintf("%s (%s)", name, label))
	}
	sort.Strings(out)
	return out
}

func nodeMentions(n domain.GraphNode, needle string) bool {
	for _, v := range n.Props {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	for _, l := range n.Labels {
		if strings.Contains(strings.ToLower(l), needle) {
			return true
		}
	}
	return false
}

func nodeName(n domain.GraphNode) string {
	for _, key := range []string{"name", "title", "label"} {
		if s, ok := n.Props[key].(string); ok && s != "" {
			return s
		}
	}
	if len(n.Labels) > 0 {
		return n.Labels[0]
	}
	return "unnamed"
}

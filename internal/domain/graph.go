package domain

import "context"

// GraphNode is a node in the owner's knowledge graph neighborhood.
type GraphNode struct {
	Labels []string
	Props  map[string]any
}

// GraphStore gives read access to an external knowledge graph. The driver
// lifecycle is owned by process bootstrap: Connect once at startup, Close on
// shutdown. Tools receive the store by reference and never (re)connect.
type GraphStore interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	// Neighborhood returns the distinct nodes within maxHops of the owner's
	// root node.
	Neighborhood(ctx context.Context, ownerID int64, maxHops int) ([]GraphNode, error)
}

package entities

import (
	"time"

	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
)

// GraphNode is a node inside a workspace graph. Graphs are synchronized
// wholesale from the canvas client, so nodes are plain records rather
// than rich entities. The parent chain lists ancestor node IDs from the
// immediate parent outward.
type GraphNode struct {
	ID          valueobjects.NodeID
	Content     valueobjects.NodeContent
	Position    valueobjects.Position
	ParentChain []valueobjects.NodeID
	Provenance  *Provenance // nil unless a promotion materialized this node
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewGraphNode creates a node with a fresh identity
func NewGraphNode(content valueobjects.NodeContent, position valueobjects.Position, parentChain []valueobjects.NodeID) GraphNode {
	if parentChain == nil {
		parentChain = []valueobjects.NodeID{}
	}

	now := time.Now()
	return GraphNode{
		ID:          valueobjects.NewNodeID(),
		Content:     content,
		Position:    position,
		ParentChain: parentChain,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ReconstructGraphNode recreates a node from stored data
func ReconstructGraphNode(id valueobjects.NodeID, content valueobjects.NodeContent, position valueobjects.Position, parentChain []valueobjects.NodeID, provenance *Provenance, createdAt, updatedAt time.Time) GraphNode {
	if parentChain == nil {
		parentChain = []valueobjects.NodeID{}
	}

	return GraphNode{
		ID:          id,
		Content:     content,
		Position:    position,
		ParentChain: parentChain,
		Provenance:  provenance,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

// HasProvenance reports whether a promotion materialized this node
func (n GraphNode) HasProvenance() bool {
	return n.Provenance != nil
}

// Clone returns a deep copy of the node
func (n GraphNode) Clone() GraphNode {
	cloned := n
	cloned.ParentChain = make([]valueobjects.NodeID, len(n.ParentChain))
	copy(cloned.ParentChain, n.ParentChain)
	if n.Provenance != nil {
		provenance := *n.Provenance
		cloned.Provenance = &provenance
	}
	return cloned
}

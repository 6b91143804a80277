package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// EdgeIDScheme selects how new edge ids are generated
type EdgeIDScheme string

const (
	// EdgeIDRandom gives every edge a random token. Parallel edges are allowed.
	EdgeIDRandom EdgeIDScheme = "random"
	// EdgeIDComposite derives the id from the endpoints as "source-target".
	// A second edge between the same two nodes collides.
	EdgeIDComposite EdgeIDScheme = "composite"
)

// Edge is a directed connection from an output pin to an input pin. It holds
// identifiers only; endpoints are always resolved through the owning graph.
type Edge struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id"`
	SourcePinID  string `json:"source_pin_id"`
	TargetNodeID string `json:"target_node_id"`
	TargetPinID  string `json:"target_pin_id"`
}

// NewEdgeID generates an id for an edge between two nodes
func NewEdgeID(scheme EdgeIDScheme, sourceNodeID, targetNodeID string) string {
	if scheme == EdgeIDComposite {
		return CompositeEdgeID(sourceNodeID, targetNodeID)
	}
	return uuid.NewString()
}

// CompositeEdgeID returns the deterministic "source-target" id
func CompositeEdgeID(sourceNodeID, targetNodeID string) string {
	return fmt.Sprintf("%s-%s", sourceNodeID, targetNodeID)
}

// Touches reports whether the edge has pinID on nodeID as either endpoint
func (e *Edge) Touches(nodeID, pinID string) bool {
	return (e.SourceNodeID == nodeID && e.SourcePinID == pinID) ||
		(e.TargetNodeID == nodeID && e.TargetPinID == pinID)
}

// TouchesNode reports whether either endpoint is on nodeID
func (e *Edge) TouchesNode(nodeID string) bool {
	return e.SourceNodeID == nodeID || e.TargetNodeID == nodeID
}

// Valid reports whether the scheme is a known one
func (s EdgeIDScheme) Valid() bool {
	return s == EdgeIDRandom || s == EdgeIDComposite
}

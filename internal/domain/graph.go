package domain

import (
	"errors"
	"fmt"
)

// Graph owns nodes and edges. Both collections iterate in insertion order so
// serialisation is deterministic.
type Graph struct {
	// FilePath is the document the graph was last loaded from or saved to
	FilePath string `json:"file_path,omitempty"`

	scheme      EdgeIDScheme
	pinCapacity int

	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
}

// GraphOption configures a Graph
type GraphOption func(*Graph)

// WithEdgeIDScheme selects how AddEdge and FindOrAddEdge generate ids
func WithEdgeIDScheme(scheme EdgeIDScheme) GraphOption {
	return func(g *Graph) {
		if scheme.Valid() {
			g.scheme = scheme
		}
	}
}

// WithDefaultPinCapacity sets the capacity of pins created through the graph
func WithDefaultPinCapacity(capacity int) GraphOption {
	return func(g *Graph) {
		if capacity > 0 {
			g.pinCapacity = capacity
		}
	}
}

// NewGraph creates an empty graph
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		scheme:      EdgeIDRandom,
		pinCapacity: DefaultPinCapacity,
		nodes:       make(map[string]*Node),
		edges:       make(map[string]*Edge),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EdgeIDScheme returns the id scheme in use
func (g *Graph) EdgeIDScheme() EdgeIDScheme {
	return g.scheme
}

// Node returns the node with the given id, or nil
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// Nodes returns all nodes in insertion order
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// FindOrAddNode returns the node with id, creating it when absent. An empty
// name defaults to the id. Calling it twice with the same id is a no-op.
func (g *Graph) FindOrAddNode(id, name string) (*Node, error) {
	if id == "" {
		return nil, invalid("find or add node", id, ErrEmptyID)
	}
	if n, ok := g.nodes[id]; ok {
		return n, nil
	}
	n := NewNode(id, name)
	g.insertNode(n)
	return n, nil
}

// AddNode stores a fully built node. Pins keep their ids; indices are
// normalised and NodeID is set on every pin.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return invalid("add node", "", ErrEmptyID)
	}
	if _, ok := g.nodes[n.ID]; ok {
		return conflict("add node", n.ID, ErrDuplicateNode)
	}
	seen := make(map[string]bool)
	for _, p := range n.Pins() {
		if p.ID == "" {
			return invalid("add node", n.ID, ErrEmptyID)
		}
		if seen[p.ID] {
			return conflict("add node", p.ID, ErrDuplicatePin)
		}
		seen[p.ID] = true
	}
	if n.Inputs == nil {
		n.Inputs = make([]*Pin, 0)
	}
	if n.Outputs == nil {
		n.Outputs = make([]*Pin, 0)
	}
	for _, p := range n.Pins() {
		p.NodeID = n.ID
	}
	reindex(n.Inputs)
	reindex(n.Outputs)
	g.insertNode(n)
	return nil
}

// RemoveNode deletes a node that no edge references. Detaching edges first is
// the caller's job; the controller does it with notifications.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return notFound("remove node", id, ErrNodeNotFound)
	}
	if len(g.EdgesOfNode(id)) > 0 {
		return conflict("remove node", id, ErrNodeInUse)
	}
	delete(g.nodes, id)
	g.nodeOrder = removeID(g.nodeOrder, id)
	return nil
}

// FindPin looks up a pin on a node. It returns nil when either is missing.
func (g *Graph) FindPin(nodeID, pinID string) *Pin {
	n := g.nodes[nodeID]
	if n == nil {
		return nil
	}
	return n.FindPin(pinID)
}

// AddEdge connects an output pin to an input pin using a generated id.
// Self-loops are allowed. Nodes are never created here: a missing node or
// pin gives ErrPinNotFound, and FindOrAddEdge is the variant that creates
// nodes. Nothing changes when it fails.
func (g *Graph) AddEdge(sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*Edge, error) {
	id := NewEdgeID(g.scheme, sourceNodeID, targetNodeID)
	return g.addEdge("add edge", id, sourceNodeID, sourcePinID, targetNodeID, targetPinID)
}

// AddEdgeWithID is AddEdge with a caller-chosen id. Undo and redo use it to
// bring an edge back under its original identity.
func (g *Graph) AddEdgeWithID(id, sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*Edge, error) {
	if id == "" {
		return nil, invalid("add edge", id, ErrEmptyID)
	}
	return g.addEdge("add edge", id, sourceNodeID, sourcePinID, targetNodeID, targetPinID)
}

func (g *Graph) addEdge(op, id, sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*Edge, error) {
	if sourceNodeID == "" || targetNodeID == "" {
		return nil, invalid(op, "", ErrEmptyID)
	}
	src := g.FindPin(sourceNodeID, sourcePinID)
	if src == nil {
		return nil, notFound(op, sourcePinID, ErrPinNotFound)
	}
	tgt := g.FindPin(targetNodeID, targetPinID)
	if tgt == nil {
		return nil, notFound(op, targetPinID, ErrPinNotFound)
	}
	if src.Direction != Output {
		return nil, invalid(op, sourcePinID, fmt.Errorf("%w: source pin is %s", ErrInvalidDirection, src.Direction))
	}
	if tgt.Direction != Input {
		return nil, invalid(op, targetPinID, fmt.Errorf("%w: target pin is %s", ErrInvalidDirection, tgt.Direction))
	}
	if _, ok := g.edges[id]; ok {
		return nil, conflict(op, id, ErrDuplicateEdge)
	}

	e := &Edge{
		ID:           id,
		SourceNodeID: sourceNodeID,
		SourcePinID:  sourcePinID,
		TargetNodeID: targetNodeID,
		TargetPinID:  targetPinID,
	}
	g.edges[id] = e
	g.edgeOrder = append(g.edgeOrder, id)
	return e, nil
}

// FindOrAddEdge returns an existing edge from sourceNodeID to targetNodeID or
// creates one. Missing nodes are created. A new edge attaches to the first pin
// on each side with spare capacity; a pin is appended when none is free.
func (g *Graph) FindOrAddEdge(sourceNodeID, targetNodeID string) (*Edge, error) {
	src, err := g.FindOrAddNode(sourceNodeID, "")
	if err != nil {
		return nil, err
	}
	tgt, err := g.FindOrAddNode(targetNodeID, "")
	if err != nil {
		return nil, err
	}
	for _, e := range g.Edges() {
		if e.SourceNodeID == sourceNodeID && e.TargetNodeID == targetNodeID {
			return e, nil
		}
	}

	out, err := g.freePin(src, Output)
	if err != nil {
		return nil, err
	}
	in, err := g.freePin(tgt, Input)
	if err != nil {
		return nil, err
	}
	return g.AddEdge(src.ID, out.ID, tgt.ID, in.ID)
}

// freePin returns the first pin on one side of n that can take another edge
func (g *Graph) freePin(n *Node, dir PinDirection) (*Pin, error) {
	for _, p := range n.PinsOf(dir) {
		if len(g.EdgesOfPin(n.ID, p.ID)) < p.Capacity {
			return p, nil
		}
	}
	return g.InsertPin(n.ID, dir, len(n.PinsOf(dir)))
}

// RemoveEdge deletes an edge and reports whether it existed
func (g *Graph) RemoveEdge(id string) bool {
	if _, ok := g.edges[id]; !ok {
		return false
	}
	delete(g.edges, id)
	g.edgeOrder = removeID(g.edgeOrder, id)
	return true
}

// Edge returns the edge with the given id, or nil
func (g *Graph) Edge(id string) *Edge {
	return g.edges[id]
}

// Edges returns all edges in insertion order
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.edges[id])
	}
	return out
}

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// EdgesOfPin returns every edge where the pin is source or target
func (g *Graph) EdgesOfPin(nodeID, pinID string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges() {
		if e.Touches(nodeID, pinID) {
			out = append(out, e)
		}
	}
	return out
}

// EdgesOfNode returns every edge with an endpoint on the node
func (g *Graph) EdgesOfNode(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges() {
		if e.TouchesNode(nodeID) {
			out = append(out, e)
		}
	}
	return out
}

// InsertPin inserts a pin on a node. Pins get the graph's default capacity
// unless an option overrides it.
func (g *Graph) InsertPin(nodeID string, dir PinDirection, index int, opts ...PinOption) (*Pin, error) {
	n := g.nodes[nodeID]
	if n == nil {
		return nil, notFound("insert pin", nodeID, ErrNodeNotFound)
	}
	opts = append([]PinOption{WithCapacity(g.pinCapacity)}, opts...)
	return n.InsertPin(dir, index, opts...)
}

// RemovePin removes a pin that has no attached edges
func (g *Graph) RemovePin(nodeID, pinID string) (*Pin, error) {
	n := g.nodes[nodeID]
	if n == nil {
		return nil, notFound("remove pin", nodeID, ErrNodeNotFound)
	}
	p := n.FindPin(pinID)
	if p == nil {
		return nil, notFound("remove pin", pinID, ErrPinNotFound)
	}
	if len(g.EdgesOfPin(nodeID, pinID)) > 0 {
		return nil, conflict("remove pin", pinID, ErrPinInUse)
	}
	n.RemovePin(p)
	return p, nil
}

// Clear removes every node and edge. FilePath is kept.
func (g *Graph) Clear() {
	g.nodes = make(map[string]*Node)
	g.nodeOrder = nil
	g.edges = make(map[string]*Edge)
	g.edgeOrder = nil
}

// ReplaceWith takes over the contents and file path of other. Other must not
// be used afterwards.
func (g *Graph) ReplaceWith(other *Graph) {
	g.nodes = other.nodes
	g.nodeOrder = other.nodeOrder
	g.edges = other.edges
	g.edgeOrder = other.edgeOrder
	g.FilePath = other.FilePath
}

// Clone returns a deep copy
func (g *Graph) Clone() *Graph {
	c := NewGraph(WithEdgeIDScheme(g.scheme), WithDefaultPinCapacity(g.pinCapacity))
	c.FilePath = g.FilePath
	for _, n := range g.Nodes() {
		c.insertNode(n.Clone())
	}
	for _, e := range g.Edges() {
		ce := *e
		c.edges[ce.ID] = &ce
		c.edgeOrder = append(c.edgeOrder, ce.ID)
	}
	return c
}

// Validate checks that every edge resolves to existing pins with the right
// directions and that pin indices are contiguous. All problems are joined.
func (g *Graph) Validate() error {
	var errs []error
	for _, n := range g.Nodes() {
		seen := make(map[string]bool)
		for _, p := range n.Pins() {
			if seen[p.ID] {
				errs = append(errs, conflict("validate", p.ID, ErrDuplicatePin))
			}
			seen[p.ID] = true
		}
		for _, side := range [][]*Pin{n.Inputs, n.Outputs} {
			for i, p := range side {
				if p.Index != i {
					errs = append(errs, invalid("validate", p.ID, fmt.Errorf("pin index %d at position %d", p.Index, i)))
				}
			}
		}
	}
	for _, e := range g.Edges() {
		src := g.FindPin(e.SourceNodeID, e.SourcePinID)
		tgt := g.FindPin(e.TargetNodeID, e.TargetPinID)
		switch {
		case src == nil:
			errs = append(errs, notFound("validate", e.ID, fmt.Errorf("%w: source %s/%s", ErrPinNotFound, e.SourceNodeID, e.SourcePinID)))
		case src.Direction != Output:
			errs = append(errs, invalid("validate", e.ID, fmt.Errorf("%w: source pin is %s", ErrInvalidDirection, src.Direction)))
		}
		switch {
		case tgt == nil:
			errs = append(errs, notFound("validate", e.ID, fmt.Errorf("%w: target %s/%s", ErrPinNotFound, e.TargetNodeID, e.TargetPinID)))
		case tgt.Direction != Input:
			errs = append(errs, invalid("validate", e.ID, fmt.Errorf("%w: target pin is %s", ErrInvalidDirection, tgt.Direction)))
		}
	}
	return errors.Join(errs...)
}

func (g *Graph) insertNode(n *Node) {
	g.nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

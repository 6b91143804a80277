package domain

// Snapshot is a plain deep copy of a graph used for export, import,
// persistence and comparison
type Snapshot struct {
	FilePath string  `json:"file_path,omitempty"`
	Nodes    []*Node `json:"nodes"`
	Edges    []Edge  `json:"edges"`
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Nodes: make([]*Node, 0),
		Edges: make([]Edge, 0),
	}
}

// Snapshot returns a deep copy of the graph contents
func (g *Graph) Snapshot() *Snapshot {
	s := NewSnapshot()
	s.FilePath = g.FilePath
	for _, n := range g.Nodes() {
		s.Nodes = append(s.Nodes, n.Clone())
	}
	for _, e := range g.Edges() {
		s.Edges = append(s.Edges, *e)
	}
	return s
}

// FromSnapshot builds a graph from a snapshot. Node and pin ids and edge ids
// are preserved; the snapshot itself is not retained.
func FromSnapshot(s *Snapshot, opts ...GraphOption) (*Graph, error) {
	g := NewGraph(opts...)
	if s == nil {
		return g, nil
	}
	g.FilePath = s.FilePath
	for _, n := range s.Nodes {
		if n == nil {
			continue
		}
		if err := g.AddNode(n.Clone()); err != nil {
			return nil, err
		}
	}
	for _, e := range s.Edges {
		if _, err := g.AddEdgeWithID(e.ID, e.SourceNodeID, e.SourcePinID, e.TargetNodeID, e.TargetPinID); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddNode appends a node to the snapshot
func (s *Snapshot) AddNode(n *Node) {
	s.Nodes = append(s.Nodes, n)
}

// AddEdge appends an edge to the snapshot
func (s *Snapshot) AddEdge(e Edge) {
	s.Edges = append(s.Edges, e)
}

// PinCount returns the total number of pins over all nodes
func (s *Snapshot) PinCount() int {
	count := 0
	for _, n := range s.Nodes {
		count += len(n.Inputs) + len(n.Outputs)
	}
	return count
}

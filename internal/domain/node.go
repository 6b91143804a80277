package domain

import (
	"digraph/internal/geometry"
)

// Node is a graph vertex with two ordered sides of pins
type Node struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Position geometry.Point3 `json:"position"`
	Size     *geometry.Size3 `json:"size,omitempty"`
	Inputs   []*Pin          `json:"inputs"`
	Outputs  []*Pin          `json:"outputs"`
}

// NewNode creates a node without pins. An empty name defaults to the id.
func NewNode(id, name string) *Node {
	if name == "" {
		name = id
	}
	return &Node{
		ID:      id,
		Name:    name,
		Inputs:  make([]*Pin, 0),
		Outputs: make([]*Pin, 0),
	}
}

// AddInput appends an input pin
func (n *Node) AddInput(opts ...PinOption) (*Pin, error) {
	return n.InsertPin(Input, len(n.Inputs), opts...)
}

// AddOutput appends an output pin
func (n *Node) AddOutput(opts ...PinOption) (*Pin, error) {
	return n.InsertPin(Output, len(n.Outputs), opts...)
}

// InsertInput inserts an input pin at index, clamped to [0, len(Inputs)]
func (n *Node) InsertInput(index int, opts ...PinOption) (*Pin, error) {
	return n.InsertPin(Input, index, opts...)
}

// InsertOutput inserts an output pin at index, clamped to [0, len(Outputs)]
func (n *Node) InsertOutput(index int, opts ...PinOption) (*Pin, error) {
	return n.InsertPin(Output, index, opts...)
}

// InsertPin inserts a new pin on the side given by dir and reindexes that side.
// It fails if a caller-chosen pin id is already used on this node.
func (n *Node) InsertPin(dir PinDirection, index int, opts ...PinOption) (*Pin, error) {
	if !dir.Valid() {
		return nil, invalid("insert pin", n.ID, ErrInvalidDirection)
	}
	pin := newPin(n.ID, dir, opts...)
	if n.FindPin(pin.ID) != nil {
		return nil, conflict("insert pin", pin.ID, ErrDuplicatePin)
	}

	side := n.side(dir)
	index = clamp(index, 0, len(*side))
	*side = append(*side, nil)
	copy((*side)[index+1:], (*side)[index:])
	(*side)[index] = pin
	reindex(*side)
	return pin, nil
}

// RemovePin removes pin from the side matching its own direction. It reports
// whether the pin was found on this node.
func (n *Node) RemovePin(pin *Pin) bool {
	if pin == nil || !pin.Direction.Valid() {
		return false
	}
	side := n.side(pin.Direction)
	for i, p := range *side {
		if p.ID == pin.ID {
			*side = append((*side)[:i], (*side)[i+1:]...)
			reindex(*side)
			return true
		}
	}
	return false
}

// FindPin searches inputs, then outputs
func (n *Node) FindPin(pinID string) *Pin {
	for _, p := range n.Inputs {
		if p.ID == pinID {
			return p
		}
	}
	for _, p := range n.Outputs {
		if p.ID == pinID {
			return p
		}
	}
	return nil
}

// Pins returns inputs followed by outputs
func (n *Node) Pins() []*Pin {
	pins := make([]*Pin, 0, len(n.Inputs)+len(n.Outputs))
	pins = append(pins, n.Inputs...)
	return append(pins, n.Outputs...)
}

// PinsOf returns the pins on one side
func (n *Node) PinsOf(dir PinDirection) []*Pin {
	if dir == Output {
		return n.Outputs
	}
	return n.Inputs
}

func (n *Node) side(dir PinDirection) *[]*Pin {
	if dir == Output {
		return &n.Outputs
	}
	return &n.Inputs
}

func reindex(pins []*Pin) {
	for i, p := range pins {
		p.Index = i
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clone returns a deep copy of the node and its pins
func (n *Node) Clone() *Node {
	c := *n
	if n.Size != nil {
		size := *n.Size
		c.Size = &size
	}
	c.Inputs = clonePins(n.Inputs)
	c.Outputs = clonePins(n.Outputs)
	return &c
}

func clonePins(pins []*Pin) []*Pin {
	out := make([]*Pin, len(pins))
	for i, p := range pins {
		cp := *p
		out[i] = &cp
	}
	return out
}

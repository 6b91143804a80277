package command

import (
	"digraph/internal/domain"
	"digraph/internal/geometry"
)

// InsertPin inserts a pin on a node. The pin id is chosen at construction so
// a later command can refer to the pin before it exists.
type InsertPin struct {
	ctrl   Controller
	nodeID string
	dir    domain.PinDirection
	index  int
	pinID  string
}

// NewInsertPin builds an InsertPin command
func NewInsertPin(ctrl Controller, nodeID string, dir domain.PinDirection, index int) (*InsertPin, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	return &InsertPin{
		ctrl:   ctrl,
		nodeID: nodeID,
		dir:    dir,
		index:  index,
		pinID:  domain.NewPinID(),
	}, nil
}

// Do implements Command
func (c *InsertPin) Do() error {
	_, err := c.ctrl.InsertPin(c.nodeID, c.dir, c.index, domain.WithPinID(c.pinID))
	return err
}

// Undo implements Command
func (c *InsertPin) Undo() error {
	return c.ctrl.RemovePin(c.nodeID, c.pinID)
}

// Name implements Command
func (c *InsertPin) Name() string { return "Insert Pin" }

// PinID returns the id the pin is created with
func (c *InsertPin) PinID() string { return c.pinID }

// RemovePin removes a pin without attached edges. Undo puts it back at the
// same index with the same id, label, capacity and size.
type RemovePin struct {
	ctrl     Controller
	nodeID   string
	pinID    string
	dir      domain.PinDirection
	index    int
	label    string
	capacity int
	size     geometry.Size3
}

// NewRemovePin captures the pin as it is now
func NewRemovePin(ctrl Controller, nodeID, pinID string) (*RemovePin, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	p := ctrl.Graph().FindPin(nodeID, pinID)
	if p == nil {
		return nil, &domain.Error{Type: domain.ErrorTypeNotFound, Op: "remove pin", ID: pinID, Err: domain.ErrPinNotFound}
	}
	return &RemovePin{
		ctrl:     ctrl,
		nodeID:   nodeID,
		pinID:    pinID,
		dir:      p.Direction,
		index:    p.Index,
		label:    p.Label,
		capacity: p.Capacity,
		size:     p.Size,
	}, nil
}

// Do implements Command
func (c *RemovePin) Do() error {
	return c.ctrl.RemovePin(c.nodeID, c.pinID)
}

// Undo implements Command
func (c *RemovePin) Undo() error {
	_, err := c.ctrl.InsertPin(c.nodeID, c.dir, c.index,
		domain.WithPinID(c.pinID),
		domain.WithLabel(c.label),
		domain.WithCapacity(c.capacity),
		domain.WithPinSize(c.size),
	)
	return err
}

// Name implements Command
func (c *RemovePin) Name() string { return "Remove Pin" }

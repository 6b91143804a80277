package command

import (
	"errors"
	"fmt"

	"digraph/internal/domain"
	"digraph/internal/geometry"
)

// MoveNode sets a node position. Consecutive moves of the same node merge,
// keeping the first old position and the last new one.
type MoveNode struct {
	ctrl        Controller
	nodeID      string
	oldPosition geometry.Point3
	newPosition geometry.Point3
}

// NewMoveNode captures the current position as the undo target
func NewMoveNode(ctrl Controller, nodeID string, newPosition geometry.Point3) (*MoveNode, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	n := ctrl.Graph().Node(nodeID)
	if n == nil {
		return nil, &domain.Error{Type: domain.ErrorTypeNotFound, Op: "move node", ID: nodeID, Err: domain.ErrNodeNotFound}
	}
	return &MoveNode{
		ctrl:        ctrl,
		nodeID:      nodeID,
		oldPosition: n.Position,
		newPosition: newPosition,
	}, nil
}

// Do implements Command
func (c *MoveNode) Do() error {
	return c.ctrl.SetNodePosition(c.nodeID, c.newPosition)
}

// Undo implements Command
func (c *MoveNode) Undo() error {
	return c.ctrl.SetNodePosition(c.nodeID, c.oldPosition)
}

// Name implements Command
func (c *MoveNode) Name() string { return "Move Node" }

// TryMergeWith implements Merger
func (c *MoveNode) TryMergeWith(other Command) bool {
	m, ok := other.(*MoveNode)
	if !ok || m.nodeID != c.nodeID {
		return false
	}
	c.newPosition = m.newPosition
	return true
}

// OldPosition returns the position Undo restores
func (c *MoveNode) OldPosition() geometry.Point3 { return c.oldPosition }

// NewPosition returns the position Do applies
func (c *MoveNode) NewPosition() geometry.Point3 { return c.newPosition }

// AddNode creates a node without pins
type AddNode struct {
	ctrl     Controller
	nodeID   string
	name     string
	position geometry.Point3
}

// NewAddNode builds an AddNode command
func NewAddNode(ctrl Controller, nodeID, name string, position geometry.Point3) (*AddNode, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	return &AddNode{ctrl: ctrl, nodeID: nodeID, name: name, position: position}, nil
}

// Do implements Command
func (c *AddNode) Do() error {
	_, err := c.ctrl.AddNode(c.nodeID, c.name, c.position)
	return err
}

// Undo implements Command
func (c *AddNode) Undo() error {
	return c.ctrl.RemoveNode(c.nodeID)
}

// Name implements Command
func (c *AddNode) Name() string { return "Add Node" }

// RemoveNode removes a node and its edges. Undo restores the node with its
// pins and then every edge under its original id.
type RemoveNode struct {
	ctrl   Controller
	nodeID string
	node   *domain.Node
	edges  []domain.Edge
}

// NewRemoveNode builds a RemoveNode command
func NewRemoveNode(ctrl Controller, nodeID string) (*RemoveNode, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	if ctrl.Graph().Node(nodeID) == nil {
		return nil, &domain.Error{Type: domain.ErrorTypeNotFound, Op: "remove node", ID: nodeID, Err: domain.ErrNodeNotFound}
	}
	return &RemoveNode{ctrl: ctrl, nodeID: nodeID}, nil
}

// Do implements Command
func (c *RemoveNode) Do() error {
	g := c.ctrl.Graph()
	n := g.Node(c.nodeID)
	if n == nil {
		return &domain.Error{Type: domain.ErrorTypeNotFound, Op: "remove node", ID: c.nodeID, Err: domain.ErrNodeNotFound}
	}
	c.node = n.Clone()
	c.edges = c.edges[:0]
	for _, e := range g.EdgesOfNode(c.nodeID) {
		c.edges = append(c.edges, *e)
	}
	return c.ctrl.RemoveNode(c.nodeID)
}

// Undo implements Command
func (c *RemoveNode) Undo() error {
	if c.node == nil {
		return nil
	}
	if _, err := c.ctrl.RestoreNode(c.node); err != nil {
		return err
	}
	var errs []error
	for _, e := range c.edges {
		if _, err := c.ctrl.AddEdgeWithID(e.ID, e.SourceNodeID, e.SourcePinID, e.TargetNodeID, e.TargetPinID); err != nil {
			errs = append(errs, fmt.Errorf("restore edge %s: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Name implements Command
func (c *RemoveNode) Name() string { return "Remove Node" }

// RenameNode changes a node's display name
type RenameNode struct {
	ctrl    Controller
	nodeID  string
	oldName string
	newName string
}

// NewRenameNode captures the current name as the undo target
func NewRenameNode(ctrl Controller, nodeID, name string) (*RenameNode, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	n := ctrl.Graph().Node(nodeID)
	if n == nil {
		return nil, &domain.Error{Type: domain.ErrorTypeNotFound, Op: "rename node", ID: nodeID, Err: domain.ErrNodeNotFound}
	}
	return &RenameNode{ctrl: ctrl, nodeID: nodeID, oldName: n.Name, newName: name}, nil
}

// Do implements Command
func (c *RenameNode) Do() error {
	return c.ctrl.RenameNode(c.nodeID, c.newName)
}

// Undo implements Command
func (c *RenameNode) Undo() error {
	return c.ctrl.RenameNode(c.nodeID, c.oldName)
}

// Name implements Command
func (c *RenameNode) Name() string { return "Rename Node" }

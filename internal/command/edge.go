package command

import (
	"errors"
	"fmt"

	"digraph/internal/domain"
)

// AddEdge connects two pins. The edge id is generated on the first Do and
// reused on redo, so the edge keeps its identity across undo and redo.
type AddEdge struct {
	ctrl                      Controller
	sourceNodeID, sourcePinID string
	targetNodeID, targetPinID string
	edgeID                    string
}

// NewAddEdge builds an AddEdge command
func NewAddEdge(ctrl Controller, sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*AddEdge, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	return &AddEdge{
		ctrl:         ctrl,
		sourceNodeID: sourceNodeID,
		sourcePinID:  sourcePinID,
		targetNodeID: targetNodeID,
		targetPinID:  targetPinID,
	}, nil
}

// Do implements Command
func (c *AddEdge) Do() error {
	if c.edgeID != "" {
		_, err := c.ctrl.AddEdgeWithID(c.edgeID, c.sourceNodeID, c.sourcePinID, c.targetNodeID, c.targetPinID)
		return err
	}
	e, err := c.ctrl.AddEdge(c.sourceNodeID, c.sourcePinID, c.targetNodeID, c.targetPinID)
	if err != nil {
		return err
	}
	c.edgeID = e.ID
	return nil
}

// Undo implements Command
func (c *AddEdge) Undo() error {
	if c.edgeID == "" {
		return nil
	}
	return c.ctrl.RemoveEdge(c.edgeID)
}

// Name implements Command
func (c *AddEdge) Name() string { return "Add Edge" }

// EdgeID returns the id of the created edge, empty before the first Do
func (c *AddEdge) EdgeID() string { return c.edgeID }

// RemoveEdge deletes an edge. Undo recreates it with the same id and
// endpoints.
type RemoveEdge struct {
	ctrl Controller
	edge domain.Edge
}

// NewRemoveEdge captures the edge as it is now
func NewRemoveEdge(ctrl Controller, edgeID string) (*RemoveEdge, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	e := ctrl.Graph().Edge(edgeID)
	if e == nil {
		return nil, &domain.Error{Type: domain.ErrorTypeNotFound, Op: "remove edge", ID: edgeID, Err: domain.ErrEdgeNotFound}
	}
	return &RemoveEdge{ctrl: ctrl, edge: *e}, nil
}

// Do implements Command
func (c *RemoveEdge) Do() error {
	return c.ctrl.RemoveEdge(c.edge.ID)
}

// Undo implements Command
func (c *RemoveEdge) Undo() error {
	e := c.edge
	_, err := c.ctrl.AddEdgeWithID(e.ID, e.SourceNodeID, e.SourcePinID, e.TargetNodeID, e.TargetPinID)
	return err
}

// Name implements Command
func (c *RemoveEdge) Name() string { return "Remove Edge" }

// ConnectWithAutoPin optionally inserts a pin and then adds an edge. Undo
// removes the edge before the pin.
type ConnectWithAutoPin struct {
	insertPin *InsertPin
	addEdge   *AddEdge
}

// NewConnectWithAutoPin composes an optional pin insertion with an edge
func NewConnectWithAutoPin(insertPin *InsertPin, addEdge *AddEdge) (*ConnectWithAutoPin, error) {
	if addEdge == nil {
		return nil, ErrNilCommand
	}
	return &ConnectWithAutoPin{insertPin: insertPin, addEdge: addEdge}, nil
}

// AutoConnect connects an output pin to targetNodeID. When targetPinID is
// empty or that pin has no spare capacity, a new input pin is appended to
// the target and the edge is attached to it.
func AutoConnect(ctrl Controller, sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*ConnectWithAutoPin, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	g := ctrl.Graph()
	target := g.Node(targetNodeID)
	if target == nil {
		return nil, &domain.Error{Type: domain.ErrorTypeNotFound, Op: "connect", ID: targetNodeID, Err: domain.ErrNodeNotFound}
	}

	var insert *InsertPin
	if p := target.FindPin(targetPinID); p == nil || p.Direction != domain.Input || len(g.EdgesOfPin(targetNodeID, p.ID)) >= p.Capacity {
		var err error
		insert, err = NewInsertPin(ctrl, targetNodeID, domain.Input, len(target.Inputs))
		if err != nil {
			return nil, err
		}
		targetPinID = insert.PinID()
	}
	add, err := NewAddEdge(ctrl, sourceNodeID, sourcePinID, targetNodeID, targetPinID)
	if err != nil {
		return nil, err
	}
	return NewConnectWithAutoPin(insert, add)
}

// Do implements Command
func (c *ConnectWithAutoPin) Do() error {
	if c.insertPin != nil {
		if err := c.insertPin.Do(); err != nil {
			return err
		}
	}
	if err := c.addEdge.Do(); err != nil {
		if c.insertPin != nil {
			if rbErr := c.insertPin.Undo(); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
		return err
	}
	return nil
}

// Undo implements Command
func (c *ConnectWithAutoPin) Undo() error {
	if err := c.addEdge.Undo(); err != nil {
		return err
	}
	if c.insertPin != nil {
		return c.insertPin.Undo()
	}
	return nil
}

// Name implements Command
func (c *ConnectWithAutoPin) Name() string { return "Connect" }

// EdgeID returns the id of the created edge
func (c *ConnectWithAutoPin) EdgeID() string { return c.addEdge.EdgeID() }

// InsertedPinID returns the id of the auto-inserted pin, if any
func (c *ConnectWithAutoPin) InsertedPinID() string {
	if c.insertPin == nil {
		return ""
	}
	return c.insertPin.PinID()
}

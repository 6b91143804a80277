// Package command makes graph edits reversible. Every command calls the
// Controller only, captures stable ids rather than node or pin values, and is
// sequenced by a Stack with linear undo and redo history.
package command

import (
	"errors"

	"digraph/internal/domain"
	"digraph/internal/geometry"
)

var (
	// ErrNilController is returned when a command is built without a controller
	ErrNilController = errors.New("command: nil controller")
	// ErrNilCommand is returned when a nil command is executed or composed
	ErrNilCommand = errors.New("command: nil command")
)

// Command is a reversible unit of work. Undo must restore the state from
// before Do through the same controller calls.
type Command interface {
	Do() error
	Undo() error
	Name() string
}

// Merger is implemented by commands that can absorb a following command of
// the same kind, such as consecutive moves during a drag
type Merger interface {
	TryMergeWith(other Command) bool
}

// Controller is the subset of service.Controller commands are built on
type Controller interface {
	Graph() *domain.Graph
	AddNode(id, name string, position geometry.Point3) (*domain.Node, error)
	RestoreNode(n *domain.Node) (*domain.Node, error)
	RemoveNode(id string) error
	AddEdge(sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*domain.Edge, error)
	AddEdgeWithID(id, sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*domain.Edge, error)
	RemoveEdge(id string) error
	InsertPin(nodeID string, dir domain.PinDirection, index int, opts ...domain.PinOption) (*domain.Pin, error)
	RemovePin(nodeID, pinID string) error
	SetNodePosition(id string, position geometry.Point3) error
	RenameNode(id, name string) error
}

var (
	_ Command = (*AddEdge)(nil)
	_ Command = (*RemoveEdge)(nil)
	_ Command = (*InsertPin)(nil)
	_ Command = (*RemovePin)(nil)
	_ Command = (*MoveNode)(nil)
	_ Command = (*AddNode)(nil)
	_ Command = (*RemoveNode)(nil)
	_ Command = (*RenameNode)(nil)
	_ Command = (*Composite)(nil)
	_ Command = (*ConnectWithAutoPin)(nil)
	_ Merger  = (*MoveNode)(nil)
)

// Package domain defines the graph model edited by digraph.
//
// # Core Types
//
// Node is a vertex with a caller-chosen id, a display name, a 3D position and
// two ordered sides of pins. Pin is an attachment point with a stable random id,
// a direction and a capacity. Its Index is its position within its side and is
// recomputed to 0..n-1 after every insert or remove.
//
// Edge connects an output pin to an input pin. It stores the four endpoint ids
// only and never references node or pin values.
//
// Graph owns nodes and edges and keeps both in insertion order. Its operations
// preserve the invariant that every edge resolves to existing pins with the
// correct directions; operations that would break it fail and change nothing.
//
// Snapshot is a detached deep copy used by codecs and repositories.
//
// # Errors
//
// Every failure is an *Error carrying a type (validation, not found, conflict)
// and wrapping a sentinel such as ErrPinNotFound, so both errors.Is and
// IsNotFound style checks work.
package domain

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations. Every failure returned by this package
// wraps exactly one of them, so callers can test with errors.Is.
var (
	ErrEmptyID          = errors.New("domain: empty id")
	ErrNodeNotFound     = errors.New("domain: node not found")
	ErrPinNotFound      = errors.New("domain: pin not found")
	ErrEdgeNotFound     = errors.New("domain: edge not found")
	ErrInvalidDirection = errors.New("domain: invalid pin direction")
	ErrDuplicateNode    = errors.New("domain: duplicate node id")
	ErrDuplicatePin     = errors.New("domain: duplicate pin id")
	ErrDuplicateEdge    = errors.New("domain: duplicate edge id")
	ErrNodeInUse        = errors.New("domain: node has attached edges")
	ErrPinInUse         = errors.New("domain: pin has attached edges")
)

// ErrorType classifies a domain failure
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
)

// Error is the typed failure returned by graph operations. It names the
// operation and the offending id and wraps one of the sentinel errors.
type Error struct {
	Type ErrorType
	Op   string
	ID   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is and errors.As to work
func (e *Error) Unwrap() error {
	return e.Err
}

func notFound(op, id string, err error) error {
	return &Error{Type: ErrorTypeNotFound, Op: op, ID: id, Err: err}
}

func invalid(op, id string, err error) error {
	return &Error{Type: ErrorTypeValidation, Op: op, ID: id, Err: err}
}

func conflict(op, id string, err error) error {
	return &Error{Type: ErrorTypeConflict, Op: op, ID: id, Err: err}
}

// IsNotFound reports whether err is a lookup failure
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err rejects malformed input
func IsValidation(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsConflict reports whether err is an id collision or an in-use guard
func IsConflict(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

func hasType(err error, t ErrorType) bool {
	var de *Error
	return errors.As(err, &de) && de.Type == t
}

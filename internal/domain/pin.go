package domain

import (
	"fmt"
	"strings"

	"digraph/internal/geometry"

	"github.com/google/uuid"
)

// PinDirection tells on which side of a node a pin sits
type PinDirection int

const (
	Input PinDirection = iota
	Output
)

const (
	// DefaultPinCapacity is how many edges a pin accepts unless told otherwise
	DefaultPinCapacity = 1
)

// DefaultPinSize is the visual extent given to new pins
var DefaultPinSize = geometry.Sz(0.1, 0.1, 0.1)

// String returns "Input" or "Output"
func (d PinDirection) String() string {
	switch d {
	case Input:
		return "Input"
	case Output:
		return "Output"
	default:
		return fmt.Sprintf("PinDirection(%d)", int(d))
	}
}

// Valid reports whether d is one of the two known directions
func (d PinDirection) Valid() bool {
	return d == Input || d == Output
}

// ParsePinDirection parses a direction case-insensitively. Anything that is not
// "output" is an input, matching what older layout files expect.
func ParsePinDirection(s string) PinDirection {
	if strings.EqualFold(strings.TrimSpace(s), "output") {
		return Output
	}
	return Input
}

// MarshalText implements encoding.TextMarshaler
func (d PinDirection) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid pin direction %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *PinDirection) UnmarshalText(text []byte) error {
	*d = ParsePinDirection(string(text))
	return nil
}

// Pin is an attachment point on a node where edges terminate
type Pin struct {
	ID        string         `json:"id"`
	NodeID    string         `json:"node_id"`
	Direction PinDirection   `json:"direction"`
	Index     int            `json:"index"`
	Label     string         `json:"label,omitempty"`
	Capacity  int            `json:"capacity"`
	Size      geometry.Size3 `json:"size"`
}

// NewPinID returns a fresh random pin identifier
func NewPinID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DisplayID is a human-friendly name like "In-000". It changes when the pin is
// reindexed, so never store it.
func (p *Pin) DisplayID() string {
	prefix := "In"
	if p.Direction == Output {
		prefix = "Out"
	}
	return fmt.Sprintf("%s-%03d", prefix, p.Index)
}

// PinOption customises a pin at creation time
type PinOption func(*Pin)

// WithPinID assigns a caller-chosen id instead of a random one
func WithPinID(id string) PinOption {
	return func(p *Pin) {
		if id != "" {
			p.ID = id
		}
	}
}

// WithLabel sets the display label
func WithLabel(label string) PinOption {
	return func(p *Pin) { p.Label = label }
}

// WithCapacity sets how many edges may attach. Values below 1 are ignored.
func WithCapacity(capacity int) PinOption {
	return func(p *Pin) {
		if capacity > 0 {
			p.Capacity = capacity
		}
	}
}

// WithPinSize sets the visual size
func WithPinSize(size geometry.Size3) PinOption {
	return func(p *Pin) { p.Size = size }
}

func newPin(nodeID string, dir PinDirection, opts ...PinOption) *Pin {
	p := &Pin{
		ID:        NewPinID(),
		NodeID:    nodeID,
		Direction: dir,
		Capacity:  DefaultPinCapacity,
		Size:      DefaultPinSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

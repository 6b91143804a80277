package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"digraph/internal/domain"
)

// JSONCodec reads and writes snapshots in the same shape the HTTP API serves
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse reads a snapshot. Pin fields that follow from where a pin sits
// (owner, direction, index) are filled in, missing capacities and sizes get
// defaults, and the result must build into a consistent graph.
func (c *JSONCodec) Parse(r io.Reader) (*domain.Snapshot, error) {
	snapshot := domain.NewSnapshot()
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	for _, n := range snapshot.Nodes {
		if n == nil {
			return nil, fmt.Errorf("invalid JSON snapshot: null node")
		}
		normalizePins(n.ID, domain.Input, n.Inputs)
		normalizePins(n.ID, domain.Output, n.Outputs)
	}

	g, err := domain.FromSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON snapshot: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid JSON snapshot: %w", err)
	}
	return snapshot, nil
}

func normalizePins(nodeID string, dir domain.PinDirection, pins []*domain.Pin) {
	for i, p := range pins {
		if p == nil {
			p = &domain.Pin{ID: domain.NewPinID()}
			pins[i] = p
		}
		p.NodeID = nodeID
		p.Direction = dir
		p.Index = i
		if p.Capacity <= 0 {
			p.Capacity = domain.DefaultPinCapacity
		}
		if p.Size.IsZero() {
			p.Size = domain.DefaultPinSize
		}
	}
}

// Export writes the snapshot as indented JSON
func (c *JSONCodec) Export(snapshot *domain.Snapshot, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

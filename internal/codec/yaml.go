package codec

import (
	"fmt"
	"io"

	"digraph/internal/domain"
	"digraph/internal/geometry"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export of full snapshots
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlDocument represents the YAML structure for graph data
type yamlDocument struct {
	Nodes []yamlNode `yaml:"nodes"`
	Edges []yamlEdge `yaml:"edges"`
}

type yamlNode struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name,omitempty"`
	Position geometry.Point3 `yaml:"position"`
	Size     *geometry.Size3 `yaml:"size,omitempty"`
	Inputs   []yamlPin       `yaml:"inputs,omitempty"`
	Outputs  []yamlPin       `yaml:"outputs,omitempty"`
}

type yamlPin struct {
	ID       string          `yaml:"id"`
	Label    string          `yaml:"label,omitempty"`
	Capacity int             `yaml:"capacity,omitempty"`
	Size     *geometry.Size3 `yaml:"size,omitempty"`
}

type yamlEdge struct {
	ID         string `yaml:"id"`
	SourceNode string `yaml:"source_node"`
	SourcePin  string `yaml:"source_pin"`
	TargetNode string `yaml:"target_node"`
	TargetPin  string `yaml:"target_pin"`
}

// Parse imports graph data from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.Snapshot, error) {
	var doc yamlDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	snapshot := domain.NewSnapshot()

	// Convert nodes
	for _, yn := range doc.Nodes {
		node := domain.NewNode(yn.ID, yn.Name)
		node.Position = yn.Position
		node.Size = yn.Size
		node.Inputs = fromYAMLPins(yn.ID, domain.Input, yn.Inputs)
		node.Outputs = fromYAMLPins(yn.ID, domain.Output, yn.Outputs)
		snapshot.AddNode(node)
	}

	// Convert edges
	for _, ye := range doc.Edges {
		snapshot.AddEdge(domain.Edge{
			ID:           ye.ID,
			SourceNodeID: ye.SourceNode,
			SourcePinID:  ye.SourcePin,
			TargetNodeID: ye.TargetNode,
			TargetPinID:  ye.TargetPin,
		})
	}

	return snapshot, nil
}

func fromYAMLPins(nodeID string, dir domain.PinDirection, pins []yamlPin) []*domain.Pin {
	out := make([]*domain.Pin, 0, len(pins))
	for i, yp := range pins {
		p := &domain.Pin{
			ID:        yp.ID,
			NodeID:    nodeID,
			Direction: dir,
			Index:     i,
			Label:     yp.Label,
			Capacity:  yp.Capacity,
			Size:      domain.DefaultPinSize,
		}
		if p.Capacity <= 0 {
			p.Capacity = domain.DefaultPinCapacity
		}
		if yp.Size != nil {
			p.Size = *yp.Size
		}
		out = append(out, p)
	}
	return out
}

// Export exports graph data to YAML
func (c *YAMLCodec) Export(snapshot *domain.Snapshot, w io.Writer) error {
	doc := yamlDocument{
		Nodes: make([]yamlNode, 0, len(snapshot.Nodes)),
		Edges: make([]yamlEdge, 0, len(snapshot.Edges)),
	}

	// Convert nodes
	for _, node := range snapshot.Nodes {
		doc.Nodes = append(doc.Nodes, yamlNode{
			ID:       node.ID,
			Name:     node.Name,
			Position: node.Position,
			Size:     node.Size,
			Inputs:   toYAMLPins(node.Inputs),
			Outputs:  toYAMLPins(node.Outputs),
		})
	}

	// Convert edges
	for _, edge := range snapshot.Edges {
		doc.Edges = append(doc.Edges, yamlEdge{
			ID:         edge.ID,
			SourceNode: edge.SourceNodeID,
			SourcePin:  edge.SourcePinID,
			TargetNode: edge.TargetNodeID,
			TargetPin:  edge.TargetPinID,
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

func toYAMLPins(pins []*domain.Pin) []yamlPin {
	out := make([]yamlPin, 0, len(pins))
	for _, p := range pins {
		yp := yamlPin{ID: p.ID, Label: p.Label, Capacity: p.Capacity}
		if p.Size != domain.DefaultPinSize {
			size := p.Size
			yp.Size = &size
		}
		out = append(out, yp)
	}
	return out
}

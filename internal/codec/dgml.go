package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"digraph/internal/domain"
	"digraph/internal/geometry"
)

// DGMLNamespace is the Directed Graph Markup Language namespace
const DGMLNamespace = "http://schemas.microsoft.com/vs/2009/dgml"

var (
	// ErrInvalidRoot is returned when the root element is not DirectedGraph
	ErrInvalidRoot = errors.New("codec: root element is not DirectedGraph")
	// ErrMissingNodes is returned when a structure document has no Nodes section
	ErrMissingNodes = errors.New("codec: document has no Nodes section")
	// ErrInvalidAttribute is returned for unparsable Position, Size, Bounds or Index values
	ErrInvalidAttribute = errors.New("codec: invalid attribute")
)

// dgmlDocument is shared by the structure document and the layout overlay
type dgmlDocument struct {
	XMLName xml.Name
	Title   string     `xml:"Title,attr,omitempty"`
	Nodes   *dgmlNodes `xml:"Nodes"`
	Links   *dgmlLinks `xml:"Links"`
	Edges   *dgmlLinks `xml:"Edges"`
}

type dgmlNodes struct {
	Nodes []dgmlNode `xml:"Node"`
}

type dgmlNode struct {
	ID       string    `xml:"Id,attr"`
	Label    string    `xml:"Label,attr,omitempty"`
	Name     string    `xml:"Name,attr,omitempty"`
	Bounds   string    `xml:"Bounds,attr,omitempty"`
	Layout   string    `xml:"Layout,attr,omitempty"`
	Position string    `xml:"Position,attr,omitempty"`
	Size     string    `xml:"Size,attr,omitempty"`
	Pins     []dgmlPin `xml:"Pin"`
}

type dgmlPin struct {
	ID        string `xml:"Id,attr"`
	Index     string `xml:"Index,attr,omitempty"`
	Direction string `xml:"Direction,attr"`
	Label     string `xml:"Label,attr,omitempty"`
	Capacity  string `xml:"Capacity,attr,omitempty"`
}

type dgmlLinks struct {
	Links []dgmlLink `xml:",any"`
}

type dgmlLink struct {
	XMLName   xml.Name
	ID        string `xml:"Id,attr,omitempty"`
	Source    string `xml:"Source,attr"`
	Target    string `xml:"Target,attr"`
	SourcePin string `xml:"SourcePin,attr,omitempty"`
	TargetPin string `xml:"TargetPin,attr,omitempty"`
}

// Document is a parsed DGML structure document or layout overlay
type Document struct {
	doc dgmlDocument
}

// DGMLCodec reads and writes DGML. The structure document carries node ids,
// labels and links; the layout overlay carries positions, sizes, pins and the
// pin bindings of every link.
type DGMLCodec struct {
	opts []domain.GraphOption
}

// NewDGMLCodec creates a DGML codec. Graph options apply to graphs it builds.
func NewDGMLCodec(opts ...domain.GraphOption) *DGMLCodec {
	return &DGMLCodec{opts: opts}
}

// Format returns the codec format identifier
func (c *DGMLCodec) Format() string {
	return "dgml"
}

// DecodeStructure parses a structure document. The root must be DirectedGraph
// and a Nodes section must be present.
func (c *DGMLCodec) DecodeStructure(r io.Reader) (*Document, error) {
	d, err := decodeDGML(r)
	if err != nil {
		return nil, err
	}
	if d.doc.Nodes == nil {
		return nil, ErrMissingNodes
	}
	return d, nil
}

// DecodeLayout parses a layout overlay. A missing Nodes section is allowed.
func (c *DGMLCodec) DecodeLayout(r io.Reader) (*Document, error) {
	return decodeDGML(r)
}

func decodeDGML(r io.Reader) (*Document, error) {
	var doc dgmlDocument
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse DGML: %w", err)
	}
	if doc.XMLName.Local != "DirectedGraph" {
		return nil, fmt.Errorf("%w: found <%s>", ErrInvalidRoot, doc.XMLName.Local)
	}
	return &Document{doc: doc}, nil
}

// Build creates a graph from a structure document and an optional layout
// overlay. Nodes come first, then legacy Bounds, then the overlay's positions,
// sizes and pins, and finally links. A link bound in the overlay keeps its id
// and pins; any other link attaches to free pins, appending pins as needed.
// Duplicate links between the same two nodes collapse into one edge.
func (c *DGMLCodec) Build(structure, layout *Document) (*domain.Graph, error) {
	g := domain.NewGraph(c.opts...)
	if structure == nil || structure.doc.Nodes == nil {
		return nil, ErrMissingNodes
	}

	for _, dn := range structure.doc.Nodes.Nodes {
		id := strings.TrimSpace(dn.ID)
		if id == "" {
			continue
		}
		label := dn.Label
		if label == "" {
			label = dn.Name
		}
		n, err := g.FindOrAddNode(id, label)
		if err != nil {
			return nil, err
		}
		if dn.Bounds != "" {
			v, err := parseFloats(dn.Bounds, 4, 4)
			if err != nil {
				return nil, fmt.Errorf("node %q Bounds: %w", id, err)
			}
			n.Position = geometry.Pt(v[0], v[1], 0)
			size := geometry.Sz(v[2], v[3], 0)
			n.Size = &size
		}
	}

	var bound []dgmlLink
	if layout != nil {
		if err := applyLayout(g, layout.doc); err != nil {
			return nil, err
		}
		bound = layout.doc.links()
	}

	used := make([]bool, len(bound))
	for _, link := range structure.doc.links() {
		src, tgt := strings.TrimSpace(link.Source), strings.TrimSpace(link.Target)
		if src == "" || tgt == "" {
			continue
		}
		if addBoundEdge(g, bound, used, src, tgt) {
			continue
		}
		if _, err := g.FindOrAddEdge(src, tgt); err != nil {
			return nil, fmt.Errorf("link %s -> %s: %w", src, tgt, err)
		}
	}
	return g, nil
}

// addBoundEdge adds the first unused overlay link for src -> tgt whose pins
// still resolve. It reports whether an edge was added.
func addBoundEdge(g *domain.Graph, bound []dgmlLink, used []bool, src, tgt string) bool {
	for i, l := range bound {
		if used[i] || l.Source != src || l.Target != tgt || l.SourcePin == "" || l.TargetPin == "" {
			continue
		}
		used[i] = true
		var err error
		if l.ID != "" && g.Edge(l.ID) == nil {
			_, err = g.AddEdgeWithID(l.ID, src, l.SourcePin, tgt, l.TargetPin)
		} else {
			_, err = g.AddEdge(src, l.SourcePin, tgt, l.TargetPin)
		}
		if err == nil {
			return true
		}
	}
	return false
}

func applyLayout(g *domain.Graph, doc dgmlDocument) error {
	if doc.Nodes == nil {
		return nil
	}
	for _, dn := range doc.Nodes.Nodes {
		n := g.Node(strings.TrimSpace(dn.ID))
		if n == nil {
			continue
		}
		if dn.Position != "" {
			v, err := parseFloats(dn.Position, 2, 3)
			if err != nil {
				return fmt.Errorf("node %q Position: %w", n.ID, err)
			}
			n.Position = geometry.Pt(v[0], v[1], v[2])
		}
		if dn.Size != "" {
			v, err := parseFloats(dn.Size, 2, 3)
			if err != nil {
				return fmt.Errorf("node %q Size: %w", n.ID, err)
			}
			size := geometry.Sz(v[0], v[1], v[2])
			n.Size = &size
		}
		if err := applyPins(g, n, dn.Pins); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
	}
	return nil
}

type orderedPin struct {
	pin   dgmlPin
	index int
	seq   int
}

// applyPins appends overlay pins in Index order, falling back to document
// order. Pins whose id already exists on the node are skipped.
func applyPins(g *domain.Graph, n *domain.Node, pins []dgmlPin) error {
	ordered := make([]orderedPin, 0, len(pins))
	for i, p := range pins {
		op := orderedPin{pin: p, index: i, seq: i}
		if p.Index != "" {
			idx, err := strconv.Atoi(strings.TrimSpace(p.Index))
			if err != nil {
				return fmt.Errorf("pin %q Index %q: %w", p.ID, p.Index, ErrInvalidAttribute)
			}
			op.index = idx
		}
		ordered = append(ordered, op)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].index != ordered[j].index {
			return ordered[i].index < ordered[j].index
		}
		return ordered[i].seq < ordered[j].seq
	})

	for _, op := range ordered {
		p := op.pin
		if p.ID != "" && n.FindPin(p.ID) != nil {
			continue
		}
		dir := domain.ParsePinDirection(p.Direction)
		opts := []domain.PinOption{domain.WithPinID(p.ID), domain.WithLabel(p.Label)}
		if p.Capacity != "" {
			capacity, err := strconv.Atoi(strings.TrimSpace(p.Capacity))
			if err != nil {
				return fmt.Errorf("pin %q Capacity %q: %w", p.ID, p.Capacity, ErrInvalidAttribute)
			}
			opts = append(opts, domain.WithCapacity(capacity))
		}
		if _, err := g.InsertPin(n.ID, dir, len(n.PinsOf(dir)), opts...); err != nil {
			return err
		}
	}
	return nil
}

func (d dgmlDocument) links() []dgmlLink {
	var out []dgmlLink
	if d.Links != nil {
		out = append(out, d.Links.Links...)
	}
	if d.Edges != nil {
		out = append(out, d.Edges.Links...)
	}
	return out
}

// Parse reads a structure document without overlay
func (c *DGMLCodec) Parse(r io.Reader) (*domain.Snapshot, error) {
	structure, err := c.DecodeStructure(r)
	if err != nil {
		return nil, err
	}
	g, err := c.Build(structure, nil)
	if err != nil {
		return nil, err
	}
	return g.Snapshot(), nil
}

// Export writes the structure document only
func (c *DGMLCodec) Export(snapshot *domain.Snapshot, w io.Writer) error {
	return c.EncodeStructure(snapshot, w)
}

// EncodeStructure writes node ids and labels and one link per edge
func (c *DGMLCodec) EncodeStructure(snapshot *domain.Snapshot, w io.Writer) error {
	doc := newDGMLDocument()
	for _, n := range snapshot.Nodes {
		label := n.Name
		if label == "" {
			label = n.ID
		}
		doc.Nodes.Nodes = append(doc.Nodes.Nodes, dgmlNode{ID: n.ID, Label: label})
	}
	for _, e := range snapshot.Edges {
		doc.Links.Links = append(doc.Links.Links, dgmlLink{
			XMLName: xml.Name{Local: "Link"},
			Source:  e.SourceNodeID,
			Target:  e.TargetNodeID,
		})
	}
	return encodeDGML(doc, w)
}

// EncodeLayout writes positions, sizes, pins and pin-bound links
func (c *DGMLCodec) EncodeLayout(snapshot *domain.Snapshot, w io.Writer) error {
	doc := newDGMLDocument()
	for _, n := range snapshot.Nodes {
		dn := dgmlNode{
			ID:       n.ID,
			Layout:   "Fixed",
			Position: formatFloats(n.Position.X, n.Position.Y, n.Position.Z),
		}
		if n.Size != nil {
			dn.Size = formatFloats(n.Size.Width, n.Size.Height, n.Size.Depth)
		}
		for _, p := range n.Pins() {
			dp := dgmlPin{
				ID:        p.ID,
				Index:     strconv.Itoa(p.Index),
				Direction: p.Direction.String(),
				Label:     p.Label,
			}
			if p.Capacity != domain.DefaultPinCapacity {
				dp.Capacity = strconv.Itoa(p.Capacity)
			}
			dn.Pins = append(dn.Pins, dp)
		}
		doc.Nodes.Nodes = append(doc.Nodes.Nodes, dn)
	}
	for _, e := range snapshot.Edges {
		doc.Links.Links = append(doc.Links.Links, dgmlLink{
			XMLName:   xml.Name{Local: "Link"},
			ID:        e.ID,
			Source:    e.SourceNodeID,
			Target:    e.TargetNodeID,
			SourcePin: e.SourcePinID,
			TargetPin: e.TargetPinID,
		})
	}
	return encodeDGML(doc, w)
}

func newDGMLDocument() *dgmlDocument {
	return &dgmlDocument{
		XMLName: xml.Name{Space: DGMLNamespace, Local: "DirectedGraph"},
		Nodes:   &dgmlNodes{Nodes: make([]dgmlNode, 0)},
		Links:   &dgmlLinks{Links: make([]dgmlLink, 0)},
	}
}

func encodeDGML(doc *dgmlDocument, w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode DGML: %w", err)
	}
	buf.WriteByte('\n')
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write DGML: %w", err)
	}
	return nil
}

// parseFloats parses "a,b[,c...]" with between lo and hi components.
// Missing trailing components up to hi are zero.
func parseFloats(s string, lo, hi int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) < lo || len(parts) > hi {
		return nil, fmt.Errorf("%w: %q needs %d to %d values", ErrInvalidAttribute, s, lo, hi)
	}
	out := make([]float64, hi)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAttribute, s, err)
		}
		out[i] = v
	}
	return out, nil
}

func formatFloats(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

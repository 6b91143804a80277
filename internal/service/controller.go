package service

import (
	"errors"
	"fmt"
	"slices"

	"digraph/internal/domain"
	"digraph/internal/geometry"

	"go.uber.org/zap"
)

// ErrReentrantMutation is returned when a notification handler tries to
// mutate the graph while the controller is dispatching an event
var ErrReentrantMutation = errors.New("service: mutation from inside a notification handler")

// ErrNoLoader is returned by ReloadFromFile when no GraphLoader is configured
var ErrNoLoader = errors.New("service: no graph loader configured")

// GraphLoader loads a graph document from disk
type GraphLoader interface {
	Load(path string) (*domain.Graph, error)
}

// Controller is the only mutator of a graph. Every successful mutation leaves
// the graph consistent and publishes notifications on the event bus before
// returning. It is not safe for concurrent use.
type Controller struct {
	graph     *domain.Graph
	bus       *EventBus
	loader    GraphLoader
	logger    *zap.Logger
	selection []string

	dispatching bool
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEventBus publishes on an existing bus instead of a private one
func WithEventBus(bus *EventBus) ControllerOption {
	return func(c *Controller) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// WithLoader sets the loader used by ReloadFromFile
func WithLoader(loader GraphLoader) ControllerOption {
	return func(c *Controller) { c.loader = loader }
}

// NewController creates a controller over graph. A nil graph starts empty.
func NewController(graph *domain.Graph, opts ...ControllerOption) *Controller {
	if graph == nil {
		graph = domain.NewGraph()
	}
	c := &Controller{
		graph:  graph,
		bus:    NewEventBus(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Graph returns the controlled graph. Callers must treat it as read-only.
func (c *Controller) Graph() *domain.Graph {
	return c.graph
}

// Events returns the bus notifications are published on
func (c *Controller) Events() *EventBus {
	return c.bus
}

// Subscribe is shorthand for Events().Subscribe
func (c *Controller) Subscribe(h Handler) *Subscription {
	return c.bus.Subscribe(h)
}

func (c *Controller) guard(op string) error {
	if c.dispatching {
		c.logger.Warn("rejected reentrant mutation", zap.String("op", op))
		return fmt.Errorf("%s: %w", op, ErrReentrantMutation)
	}
	return nil
}

func (c *Controller) emit(event Event) {
	c.dispatching = true
	defer func() { c.dispatching = false }()
	c.bus.Publish(event)
}

func (c *Controller) emitNode(t EventType, n *domain.Node) {
	c.emit(Event{Type: t, Node: n.Clone()})
}

func (c *Controller) emitEdge(t EventType, e *domain.Edge) {
	cp := *e
	c.emit(Event{Type: t, Edge: &cp})
}

func (c *Controller) emitPin(t EventType, p *domain.Pin) {
	cp := *p
	c.emit(Event{Type: t, Pin: &cp})
}

func (c *Controller) emitSelection() {
	c.emit(Event{Type: EventSelectionChanged, Selection: c.Selection()})
}

// AddNode creates a node at position and notifies NodeAdded
func (c *Controller) AddNode(id, name string, position geometry.Point3) (*domain.Node, error) {
	if err := c.guard("add node"); err != nil {
		return nil, err
	}
	n := domain.NewNode(id, name)
	n.Position = position
	if err := c.graph.AddNode(n); err != nil {
		return nil, err
	}
	c.logger.Debug("node added", zap.String("node_id", id))
	c.emitNode(EventNodeAdded, n)
	return n, nil
}

// RestoreNode adds a fully built node, pins included, and notifies NodeAdded.
// Undoing a node removal uses it to bring pins back with their ids.
func (c *Controller) RestoreNode(n *domain.Node) (*domain.Node, error) {
	if err := c.guard("restore node"); err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("restore node: %w", domain.ErrEmptyID)
	}
	n = n.Clone()
	if err := c.graph.AddNode(n); err != nil {
		return nil, err
	}
	c.logger.Debug("node restored", zap.String("node_id", n.ID), zap.Int("pins", len(n.Pins())))
	c.emitNode(EventNodeAdded, n)
	return n, nil
}

// RemoveNode deselects the node, removes every edge touching it and then the
// node itself. Observers see SelectionChanged (if it was selected), one
// EdgeRemoved per edge and finally NodeRemoved.
func (c *Controller) RemoveNode(id string) error {
	if err := c.guard("remove node"); err != nil {
		return err
	}
	n := c.graph.Node(id)
	if n == nil {
		return &domain.Error{Type: domain.ErrorTypeNotFound, Op: "remove node", ID: id, Err: domain.ErrNodeNotFound}
	}

	if i := slices.Index(c.selection, id); i >= 0 {
		c.selection = slices.Delete(c.selection, i, i+1)
		c.emitSelection()
	}
	for _, e := range c.graph.EdgesOfNode(id) {
		c.graph.RemoveEdge(e.ID)
		c.emitEdge(EventEdgeRemoved, e)
	}
	if err := c.graph.RemoveNode(id); err != nil {
		return err
	}
	c.logger.Debug("node removed", zap.String("node_id", id))
	c.emitNode(EventNodeRemoved, n)
	return nil
}

// AddEdge connects two pins with a generated id and notifies EdgeAdded
func (c *Controller) AddEdge(sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*domain.Edge, error) {
	if err := c.guard("add edge"); err != nil {
		return nil, err
	}
	e, err := c.graph.AddEdge(sourceNodeID, sourcePinID, targetNodeID, targetPinID)
	if err != nil {
		return nil, err
	}
	c.edgeAdded(e)
	return e, nil
}

// AddEdgeWithID is AddEdge with a caller-chosen edge id
func (c *Controller) AddEdgeWithID(id, sourceNodeID, sourcePinID, targetNodeID, targetPinID string) (*domain.Edge, error) {
	if err := c.guard("add edge"); err != nil {
		return nil, err
	}
	e, err := c.graph.AddEdgeWithID(id, sourceNodeID, sourcePinID, targetNodeID, targetPinID)
	if err != nil {
		return nil, err
	}
	c.edgeAdded(e)
	return e, nil
}

func (c *Controller) edgeAdded(e *domain.Edge) {
	c.logger.Debug("edge added",
		zap.String("edge_id", e.ID),
		zap.String("source", e.SourceNodeID),
		zap.String("target", e.TargetNodeID),
	)
	c.emitEdge(EventEdgeAdded, e)
}

// AddEdgeBySlot connects output slot sourceSlot of one node to input slot
// targetSlot of another. Missing nodes are created and a slot equal to the
// current pin count appends a pin. Slots beyond that, and a composite id that
// is already taken, fail before anything changes.
func (c *Controller) AddEdgeBySlot(sourceNodeID string, sourceSlot int, targetNodeID string, targetSlot int) (*domain.Edge, error) {
	if err := c.guard("add edge by slot"); err != nil {
		return nil, err
	}
	if sourceNodeID == "" || targetNodeID == "" {
		return nil, &domain.Error{Type: domain.ErrorTypeValidation, Op: "add edge by slot", Err: domain.ErrEmptyID}
	}
	if err := c.checkSlot(sourceNodeID, domain.Output, sourceSlot); err != nil {
		return nil, err
	}
	if err := c.checkSlot(targetNodeID, domain.Input, targetSlot); err != nil {
		return nil, err
	}
	if c.graph.EdgeIDScheme() == domain.EdgeIDComposite {
		if id := domain.CompositeEdgeID(sourceNodeID, targetNodeID); c.graph.Edge(id) != nil {
			return nil, &domain.Error{Type: domain.ErrorTypeConflict, Op: "add edge by slot", ID: id, Err: domain.ErrDuplicateEdge}
		}
	}

	src, err := c.slotPin(sourceNodeID, domain.Output, sourceSlot)
	if err != nil {
		return nil, err
	}
	tgt, err := c.slotPin(targetNodeID, domain.Input, targetSlot)
	if err != nil {
		return nil, err
	}
	e, err := c.graph.AddEdge(sourceNodeID, src.ID, targetNodeID, tgt.ID)
	if err != nil {
		return nil, err
	}
	c.edgeAdded(e)
	return e, nil
}

func (c *Controller) checkSlot(nodeID string, dir domain.PinDirection, slot int) error {
	count := 0
	if n := c.graph.Node(nodeID); n != nil {
		count = len(n.PinsOf(dir))
	}
	if slot < 0 || slot > count {
		return &domain.Error{
			Type: domain.ErrorTypeNotFound,
			Op:   "add edge by slot",
			ID:   nodeID,
			Err:  fmt.Errorf("%w: %s slot %d of %d", domain.ErrPinNotFound, dir, slot, count),
		}
	}
	return nil
}

func (c *Controller) slotPin(nodeID string, dir domain.PinDirection, slot int) (*domain.Pin, error) {
	n := c.graph.Node(nodeID)
	if n == nil {
		var err error
		if n, err = c.graph.FindOrAddNode(nodeID, ""); err != nil {
			return nil, err
		}
		c.emitNode(EventNodeAdded, n)
	}
	pins := n.PinsOf(dir)
	if slot < len(pins) {
		return pins[slot], nil
	}
	p, err := c.graph.InsertPin(nodeID, dir, slot)
	if err != nil {
		return nil, err
	}
	c.emitPin(EventPinInserted, p)
	return p, nil
}

// RemoveEdge removes an edge and notifies EdgeRemoved
func (c *Controller) RemoveEdge(id string) error {
	if err := c.guard("remove edge"); err != nil {
		return err
	}
	e := c.graph.Edge(id)
	if e == nil {
		return &domain.Error{Type: domain.ErrorTypeNotFound, Op: "remove edge", ID: id, Err: domain.ErrEdgeNotFound}
	}
	c.graph.RemoveEdge(id)
	c.logger.Debug("edge removed", zap.String("edge_id", id))
	c.emitEdge(EventEdgeRemoved, e)
	return nil
}

// Selection returns the selected node ids in selection order
func (c *Controller) Selection() []string {
	return slices.Clone(c.selection)
}

// IsSelected reports whether a node is selected
func (c *Controller) IsSelected(id string) bool {
	return slices.Contains(c.selection, id)
}

// SelectNode selects a node. Without multi the previous selection is
// replaced. SelectionChanged fires only if the set actually changed.
func (c *Controller) SelectNode(id string, multi bool) error {
	if err := c.guard("select node"); err != nil {
		return err
	}
	if c.graph.Node(id) == nil {
		return &domain.Error{Type: domain.ErrorTypeNotFound, Op: "select node", ID: id, Err: domain.ErrNodeNotFound}
	}

	var next []string
	if multi {
		next = slices.Clone(c.selection)
		if !slices.Contains(next, id) {
			next = append(next, id)
		}
	} else {
		next = []string{id}
	}
	if slices.Equal(next, c.selection) {
		return nil
	}
	c.selection = next
	c.emitSelection()
	return nil
}

// ClearSelection empties the selection. It is silent when already empty.
func (c *Controller) ClearSelection() error {
	if err := c.guard("clear selection"); err != nil {
		return err
	}
	c.clearSelection()
	return nil
}

func (c *Controller) clearSelection() {
	if len(c.selection) == 0 {
		return
	}
	c.selection = nil
	c.emitSelection()
}

// MoveSelectedBy offsets every selected node and notifies NodeMoved once per
// node in selection order
func (c *Controller) MoveSelectedBy(delta geometry.Vector3) error {
	if err := c.guard("move selected"); err != nil {
		return err
	}
	for _, id := range c.Selection() {
		n := c.graph.Node(id)
		if n == nil {
			continue
		}
		n.Position = n.Position.Add(delta)
		c.emitNode(EventNodeMoved, n)
	}
	return nil
}

// SetNodePosition moves a node and notifies NodeMoved, even if the position
// is unchanged
func (c *Controller) SetNodePosition(id string, position geometry.Point3) error {
	if err := c.guard("set node position"); err != nil {
		return err
	}
	n := c.graph.Node(id)
	if n == nil {
		return &domain.Error{Type: domain.ErrorTypeNotFound, Op: "set node position", ID: id, Err: domain.ErrNodeNotFound}
	}
	n.Position = position
	c.emitNode(EventNodeMoved, n)
	return nil
}

// RenameNode changes the display name and notifies NodeRenamed
func (c *Controller) RenameNode(id, name string) error {
	if err := c.guard("rename node"); err != nil {
		return err
	}
	n := c.graph.Node(id)
	if n == nil {
		return &domain.Error{Type: domain.ErrorTypeNotFound, Op: "rename node", ID: id, Err: domain.ErrNodeNotFound}
	}
	n.Name = name
	c.emitNode(EventNodeRenamed, n)
	return nil
}

// SetFilePath records the document the graph now belongs to
func (c *Controller) SetFilePath(path string) error {
	if err := c.guard("set file path"); err != nil {
		return err
	}
	c.graph.FilePath = path
	return nil
}

// InsertPin inserts a pin on a node and notifies PinInserted
func (c *Controller) InsertPin(nodeID string, dir domain.PinDirection, index int, opts ...domain.PinOption) (*domain.Pin, error) {
	if err := c.guard("insert pin"); err != nil {
		return nil, err
	}
	p, err := c.graph.InsertPin(nodeID, dir, index, opts...)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("pin inserted",
		zap.String("node_id", nodeID),
		zap.String("pin_id", p.ID),
		zap.Stringer("direction", dir),
		zap.Int("index", p.Index),
	)
	c.emitPin(EventPinInserted, p)
	return p, nil
}

// RemovePin removes a pin without attached edges and notifies PinRemoved
func (c *Controller) RemovePin(nodeID, pinID string) error {
	if err := c.guard("remove pin"); err != nil {
		return err
	}
	p, err := c.graph.RemovePin(nodeID, pinID)
	if err != nil {
		return err
	}
	c.logger.Debug("pin removed", zap.String("node_id", nodeID), zap.String("pin_id", pinID))
	c.emitPin(EventPinRemoved, p)
	return nil
}

// TryRemovePin removes a pin unless edges are attached. On refusal it
// returns false and a reason fit for the user.
func (c *Controller) TryRemovePin(nodeID, pinID string) (bool, string) {
	if c.dispatching {
		return false, "graph is being updated"
	}
	if c.graph.Node(nodeID) == nil {
		return false, fmt.Sprintf("node %q does not exist", nodeID)
	}
	if c.graph.FindPin(nodeID, pinID) == nil {
		return false, fmt.Sprintf("pin %q does not exist on node %q", pinID, nodeID)
	}
	if n := len(c.graph.EdgesOfPin(nodeID, pinID)); n > 0 {
		return false, fmt.Sprintf("pin %q has %d attached edge(s); remove them first", pinID, n)
	}
	if err := c.RemovePin(nodeID, pinID); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// ForceRemovePin removes every edge on the pin (one EdgeRemoved each) and
// then the pin. It returns the number of edges removed.
func (c *Controller) ForceRemovePin(nodeID, pinID string) (int, error) {
	if err := c.guard("force remove pin"); err != nil {
		return 0, err
	}
	if c.graph.FindPin(nodeID, pinID) == nil {
		return 0, &domain.Error{Type: domain.ErrorTypeNotFound, Op: "force remove pin", ID: pinID, Err: domain.ErrPinNotFound}
	}
	edges := c.graph.EdgesOfPin(nodeID, pinID)
	for _, e := range edges {
		c.graph.RemoveEdge(e.ID)
		c.emitEdge(EventEdgeRemoved, e)
	}
	if err := c.RemovePin(nodeID, pinID); err != nil {
		return len(edges), err
	}
	return len(edges), nil
}

// ReloadFromFile replaces the graph with the document at path. GraphReset is
// published first and GraphResetCompleted last, also when loading fails; in
// that case the current graph is left untouched.
func (c *Controller) ReloadFromFile(path string) error {
	if err := c.guard("reload"); err != nil {
		return err
	}
	c.emit(Event{Type: EventGraphReset, Path: path})

	var err error
	var loaded *domain.Graph
	if c.loader == nil {
		err = ErrNoLoader
	} else {
		loaded, err = c.loader.Load(path)
	}
	if err != nil {
		err = fmt.Errorf("reload %s: %w", path, err)
		c.logger.Warn("reload failed", zap.String("path", path), zap.Error(err))
		c.emit(Event{Type: EventGraphResetCompleted, Path: path, Err: err})
		return err
	}

	c.replace(loaded)
	c.logger.Info("graph reloaded",
		zap.String("path", path),
		zap.Int("nodes", c.graph.NodeCount()),
		zap.Int("edges", c.graph.EdgeCount()),
	)
	c.emit(Event{Type: EventGraphResetCompleted, Path: path})
	return nil
}

// ReloadFrom replaces the graph contents with those of other. Other must not
// be used afterwards.
func (c *Controller) ReloadFrom(other *domain.Graph) error {
	if err := c.guard("reload"); err != nil {
		return err
	}
	if other == nil {
		other = domain.NewGraph()
	}
	c.emit(Event{Type: EventGraphReset, Path: other.FilePath})
	c.replace(other)
	c.emit(Event{Type: EventGraphResetCompleted, Path: c.graph.FilePath})
	return nil
}

// replace swaps in the contents of other. Removal events for the old
// contents are published after the swap, so handlers no longer find them in
// the graph.
func (c *Controller) replace(other *domain.Graph) {
	oldEdges, oldNodes := c.graph.Edges(), c.graph.Nodes()
	c.graph.ReplaceWith(other)

	for _, e := range oldEdges {
		c.emitEdge(EventEdgeRemoved, e)
	}
	for _, n := range oldNodes {
		c.emitNode(EventNodeRemoved, n)
	}
	c.clearSelection()

	for _, n := range c.graph.Nodes() {
		c.emitNode(EventNodeAdded, n)
	}
	for _, e := range c.graph.Edges() {
		c.emitEdge(EventEdgeAdded, e)
	}
}

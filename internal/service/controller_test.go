package service

import (
	"errors"
	"testing"

	"digraph/internal/domain"
	"digraph/internal/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	events []Event
}

func (r *recorder) handle(e Event) { r.events = append(r.events, e) }

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) reset() { r.events = nil }

type stubLoader struct {
	graph *domain.Graph
	err   error
	paths []string
}

func (l *stubLoader) Load(path string) (*domain.Graph, error) {
	l.paths = append(l.paths, path)
	return l.graph, l.err
}

func newTestController(t *testing.T, opts ...ControllerOption) (*Controller, *recorder) {
	t.Helper()
	opts = append([]ControllerOption{WithLogger(zaptest.NewLogger(t))}, opts...)
	c := NewController(domain.NewGraph(), opts...)
	rec := &recorder{}
	c.Subscribe(rec.handle)
	return c, rec
}

// connected builds A -> B with pins "ao" and "bi"
func connected(t *testing.T, c *Controller) *domain.Edge {
	t.Helper()
	_, err := c.AddNode("A", "Alpha", geometry.Pt(0, 0, 0))
	require.NoError(t, err)
	_, err = c.AddNode("B", "Beta", geometry.Pt(10, 0, 0))
	require.NoError(t, err)
	_, err = c.InsertPin("A", domain.Output, 0, domain.WithPinID("ao"))
	require.NoError(t, err)
	_, err = c.InsertPin("B", domain.Input, 0, domain.WithPinID("bi"))
	require.NoError(t, err)
	e, err := c.AddEdge("A", "ao", "B", "bi")
	require.NoError(t, err)
	return e
}

func TestControllerAddNode(t *testing.T) {
	t.Run("adds and notifies once", func(t *testing.T) {
		c, rec := newTestController(t)
		n, err := c.AddNode("A", "Alpha", geometry.Pt(1, 2, 3))
		require.NoError(t, err)

		assert.Equal(t, geometry.Pt(1, 2, 3), n.Position)
		assert.Equal(t, []EventType{EventNodeAdded}, rec.types())
		assert.Equal(t, "A", rec.events[0].Node.ID)
	})

	t.Run("duplicate id fails silently for observers", func(t *testing.T) {
		c, rec := newTestController(t)
		_, err := c.AddNode("A", "", geometry.Point3{})
		require.NoError(t, err)
		rec.reset()

		_, err = c.AddNode("A", "", geometry.Point3{})
		assert.ErrorIs(t, err, domain.ErrDuplicateNode)
		assert.Empty(t, rec.events)
	})

	t.Run("event carries a copy", func(t *testing.T) {
		c, rec := newTestController(t)
		_, err := c.AddNode("A", "Alpha", geometry.Point3{})
		require.NoError(t, err)
		rec.events[0].Node.Name = "changed"
		assert.Equal(t, "Alpha", c.Graph().Node("A").Name)
	})
}

func TestControllerRemoveNode(t *testing.T) {
	t.Run("cascades edges before the node", func(t *testing.T) {
		c, rec := newTestController(t)
		for _, id := range []string{"X", "Y", "Z", "W"} {
			_, err := c.AddNode(id, "", geometry.Point3{})
			require.NoError(t, err)
		}
		_, err := c.AddEdgeBySlot("Y", 0, "X", 0)
		require.NoError(t, err)
		_, err = c.AddEdgeBySlot("Z", 0, "X", 1)
		require.NoError(t, err)
		_, err = c.AddEdgeBySlot("X", 0, "W", 0)
		require.NoError(t, err)
		require.NoError(t, c.SelectNode("X", false))
		rec.reset()

		require.NoError(t, c.RemoveNode("X"))

		assert.Equal(t, []EventType{
			EventSelectionChanged,
			EventEdgeRemoved,
			EventEdgeRemoved,
			EventEdgeRemoved,
			EventNodeRemoved,
		}, rec.types())
		assert.Zero(t, c.Graph().EdgeCount())
		assert.Nil(t, c.Graph().Node("X"))
		assert.Empty(t, c.Selection())
	})

	t.Run("unselected node emits no selection change", func(t *testing.T) {
		c, rec := newTestController(t)
		_, _ = c.AddNode("A", "", geometry.Point3{})
		rec.reset()
		require.NoError(t, c.RemoveNode("A"))
		assert.Equal(t, []EventType{EventNodeRemoved}, rec.types())
	})

	t.Run("missing node", func(t *testing.T) {
		c, _ := newTestController(t)
		err := c.RemoveNode("nope")
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestControllerEdges(t *testing.T) {
	t.Run("add and remove notify", func(t *testing.T) {
		c, rec := newTestController(t)
		e := connected(t, c)
		assert.Equal(t, 1, rec.count(EventEdgeAdded))

		require.NoError(t, c.RemoveEdge(e.ID))
		assert.Equal(t, 1, rec.count(EventEdgeRemoved))
		assert.ErrorIs(t, c.RemoveEdge(e.ID), domain.ErrEdgeNotFound)
	})

	t.Run("reversed direction emits nothing", func(t *testing.T) {
		c, rec := newTestController(t)
		connected(t, c)
		rec.reset()
		_, err := c.AddEdge("B", "bi", "A", "ao")
		assert.ErrorIs(t, err, domain.ErrInvalidDirection)
		assert.Empty(t, rec.events)
	})

	t.Run("with id", func(t *testing.T) {
		c, _ := newTestController(t)
		e := connected(t, c)
		require.NoError(t, c.RemoveEdge(e.ID))
		again, err := c.AddEdgeWithID(e.ID, "A", "ao", "B", "bi")
		require.NoError(t, err)
		assert.Equal(t, e.ID, again.ID)
	})

	t.Run("by slot creates nodes and pins", func(t *testing.T) {
		c, rec := newTestController(t)
		e, err := c.AddEdgeBySlot("S", 0, "T", 0)
		require.NoError(t, err)

		assert.Equal(t, 2, c.Graph().NodeCount())
		assert.Equal(t, c.Graph().Node("S").Outputs[0].ID, e.SourcePinID)
		assert.Equal(t, []EventType{
			EventNodeAdded, EventPinInserted,
			EventNodeAdded, EventPinInserted,
			EventEdgeAdded,
		}, rec.types())
	})

	t.Run("by slot reuses existing pins", func(t *testing.T) {
		c, _ := newTestController(t)
		e := connected(t, c)
		e2, err := c.AddEdgeBySlot("A", 0, "B", 0)
		require.NoError(t, err)
		assert.Equal(t, e.SourcePinID, e2.SourcePinID)
		assert.Equal(t, e.TargetPinID, e2.TargetPinID)
	})

	t.Run("by slot with a taken composite id changes nothing", func(t *testing.T) {
		graph := domain.NewGraph(domain.WithEdgeIDScheme(domain.EdgeIDComposite))
		c := NewController(graph, WithLogger(zaptest.NewLogger(t)))
		connected(t, c)
		rec := &recorder{}
		c.Subscribe(rec.handle)

		_, err := c.AddEdgeBySlot("A", 1, "B", 1)

		assert.ErrorIs(t, err, domain.ErrDuplicateEdge)
		assert.True(t, domain.IsConflict(err))
		assert.Len(t, c.Graph().Node("A").Outputs, 1)
		assert.Len(t, c.Graph().Node("B").Inputs, 1)
		assert.Equal(t, 1, c.Graph().EdgeCount())
		assert.Empty(t, rec.events)
	})

	t.Run("by slot out of range changes nothing", func(t *testing.T) {
		c, rec := newTestController(t)
		_, err := c.AddEdgeBySlot("S", 0, "T", 3)
		assert.ErrorIs(t, err, domain.ErrPinNotFound)
		assert.Zero(t, c.Graph().NodeCount())
		assert.Empty(t, rec.events)
	})
}

func TestControllerSelection(t *testing.T) {
	c, rec := newTestController(t)
	for _, id := range []string{"A", "B"} {
		_, err := c.AddNode(id, "", geometry.Point3{})
		require.NoError(t, err)
	}
	rec.reset()

	t.Run("single select replaces", func(t *testing.T) {
		require.NoError(t, c.SelectNode("A", false))
		require.NoError(t, c.SelectNode("B", false))
		assert.Equal(t, []string{"B"}, c.Selection())
		assert.Equal(t, 2, rec.count(EventSelectionChanged))
	})

	t.Run("reselecting the same node is silent", func(t *testing.T) {
		rec.reset()
		require.NoError(t, c.SelectNode("B", false))
		require.NoError(t, c.SelectNode("B", true))
		assert.Empty(t, rec.events)
	})

	t.Run("multi select adds", func(t *testing.T) {
		require.NoError(t, c.SelectNode("A", true))
		assert.Equal(t, []string{"B", "A"}, c.Selection())
		assert.True(t, c.IsSelected("A"))
		assert.Equal(t, []string{"B", "A"}, rec.events[len(rec.events)-1].Selection)
	})

	t.Run("clear is silent when empty", func(t *testing.T) {
		require.NoError(t, c.ClearSelection())
		rec.reset()
		require.NoError(t, c.ClearSelection())
		assert.Empty(t, rec.events)
	})

	t.Run("selecting a missing node fails", func(t *testing.T) {
		assert.ErrorIs(t, c.SelectNode("ghost", false), domain.ErrNodeNotFound)
	})
}

func TestControllerMove(t *testing.T) {
	c, rec := newTestController(t)
	_, _ = c.AddNode("A", "", geometry.Pt(0, 0, 0))
	_, _ = c.AddNode("B", "", geometry.Pt(10, 0, 0))
	_, _ = c.AddNode("C", "", geometry.Pt(20, 0, 0))
	require.NoError(t, c.SelectNode("B", false))
	require.NoError(t, c.SelectNode("A", true))
	rec.reset()

	require.NoError(t, c.MoveSelectedBy(geometry.Vec(1, 2, 0)))

	require.Equal(t, []EventType{EventNodeMoved, EventNodeMoved}, rec.types())
	assert.Equal(t, "B", rec.events[0].Node.ID)
	assert.Equal(t, "A", rec.events[1].Node.ID)
	assert.Equal(t, geometry.Pt(1, 2, 0), c.Graph().Node("A").Position)
	assert.Equal(t, geometry.Pt(20, 0, 0), c.Graph().Node("C").Position)

	rec.reset()
	require.NoError(t, c.SetNodePosition("C", geometry.Pt(20, 0, 0)))
	assert.Equal(t, []EventType{EventNodeMoved}, rec.types())
	assert.ErrorIs(t, c.SetNodePosition("nope", geometry.Point3{}), domain.ErrNodeNotFound)
}

func TestControllerRename(t *testing.T) {
	c, rec := newTestController(t)
	_, err := c.AddNode("A", "Alpha", geometry.Pt(1, 1, 0))
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, c.RenameNode("A", "Able"))

	require.Equal(t, []EventType{EventNodeRenamed}, rec.types())
	assert.Equal(t, "Able", rec.events[0].Node.Name)
	assert.Equal(t, geometry.Pt(1, 1, 0), c.Graph().Node("A").Position)
	assert.ErrorIs(t, c.RenameNode("nope", "x"), domain.ErrNodeNotFound)
}

func TestControllerSetFilePath(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, c.SetFilePath("/tmp/g.dgml"))
	assert.Equal(t, "/tmp/g.dgml", c.Graph().FilePath)
	assert.Empty(t, rec.events)

	var inner error
	sub := c.Subscribe(func(e Event) {
		inner = c.SetFilePath("/tmp/other.dgml")
	})
	defer sub.Unsubscribe()
	_, err := c.AddNode("A", "", geometry.Point3{})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrReentrantMutation)
	assert.Equal(t, "/tmp/g.dgml", c.Graph().FilePath)
}

func TestControllerPins(t *testing.T) {
	t.Run("try remove refuses pins in use", func(t *testing.T) {
		c, rec := newTestController(t)
		connected(t, c)
		rec.reset()

		ok, reason := c.TryRemovePin("A", "ao")
		assert.False(t, ok)
		assert.Contains(t, reason, "1 attached edge")
		assert.Empty(t, rec.events)
		assert.NotNil(t, c.Graph().FindPin("A", "ao"))
	})

	t.Run("try remove succeeds on free pins", func(t *testing.T) {
		c, rec := newTestController(t)
		_, _ = c.AddNode("A", "", geometry.Point3{})
		_, _ = c.InsertPin("A", domain.Input, 0, domain.WithPinID("p"))
		rec.reset()

		ok, reason := c.TryRemovePin("A", "p")
		assert.True(t, ok)
		assert.Empty(t, reason)
		assert.Equal(t, []EventType{EventPinRemoved}, rec.types())
	})

	t.Run("try remove explains missing pins", func(t *testing.T) {
		c, _ := newTestController(t)
		ok, reason := c.TryRemovePin("A", "p")
		assert.False(t, ok)
		assert.Contains(t, reason, "does not exist")
	})

	t.Run("force remove cascades", func(t *testing.T) {
		c, rec := newTestController(t)
		connected(t, c)
		_, err := c.AddEdge("A", "ao", "B", "bi")
		require.NoError(t, err)
		rec.reset()

		n, err := c.ForceRemovePin("A", "ao")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []EventType{EventEdgeRemoved, EventEdgeRemoved, EventPinRemoved}, rec.types())
		assert.Empty(t, c.Graph().Node("A").Outputs)
	})

	t.Run("insert reindexes", func(t *testing.T) {
		c, _ := newTestController(t)
		_, _ = c.AddNode("A", "", geometry.Point3{})
		_, _ = c.InsertPin("A", domain.Input, 0)
		p, err := c.InsertPin("A", domain.Input, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Index)
		assert.Equal(t, 1, c.Graph().Node("A").Inputs[1].Index)
	})
}

func TestControllerReload(t *testing.T) {
	t.Run("replaces contents with full notification sequence", func(t *testing.T) {
		next := domain.NewGraph()
		next.FilePath = "next.dgml"
		_, err := next.FindOrAddEdge("X", "Y")
		require.NoError(t, err)
		loader := &stubLoader{graph: next}

		c, rec := newTestController(t, WithLoader(loader))
		connected(t, c)
		require.NoError(t, c.SelectNode("A", false))
		rec.reset()

		require.NoError(t, c.ReloadFromFile("next.dgml"))

		assert.Equal(t, []EventType{
			EventGraphReset,
			EventEdgeRemoved,
			EventNodeRemoved, EventNodeRemoved,
			EventSelectionChanged,
			EventNodeAdded, EventNodeAdded,
			EventEdgeAdded,
			EventGraphResetCompleted,
		}, rec.types())
		assert.Equal(t, []string{"next.dgml"}, loader.paths)
		assert.NotNil(t, c.Graph().Node("X"))
		assert.Nil(t, c.Graph().Node("A"))
		assert.Equal(t, "next.dgml", c.Graph().FilePath)
		assert.Empty(t, c.Selection())
		assert.NoError(t, rec.events[len(rec.events)-1].Err)
	})

	t.Run("removed items are gone when announced", func(t *testing.T) {
		c, _ := newTestController(t)
		e := connected(t, c)

		var stillThere []string
		sub := c.Subscribe(func(ev Event) {
			switch ev.Type {
			case EventEdgeRemoved:
				if c.Graph().Edge(ev.Edge.ID) != nil {
					stillThere = append(stillThere, ev.Edge.ID)
				}
			case EventNodeRemoved:
				if c.Graph().Node(ev.Node.ID) != nil {
					stillThere = append(stillThere, ev.Node.ID)
				}
			}
		})
		defer sub.Unsubscribe()

		require.NoError(t, c.ReloadFrom(domain.NewGraph()))
		assert.Empty(t, stillThere, "edge %s", e.ID)
	})

	t.Run("failure still completes and keeps the graph", func(t *testing.T) {
		loader := &stubLoader{err: errors.New("file not found")}
		c, rec := newTestController(t, WithLoader(loader))
		connected(t, c)
		rec.reset()

		err := c.ReloadFromFile("/missing/graph.dgml")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "/missing/graph.dgml")
		assert.Contains(t, err.Error(), "file not found")
		require.Equal(t, []EventType{EventGraphReset, EventGraphResetCompleted}, rec.types())
		assert.Error(t, rec.events[1].Err)
		assert.Equal(t, 2, c.Graph().NodeCount())
		assert.Equal(t, 1, c.Graph().EdgeCount())
	})

	t.Run("without loader", func(t *testing.T) {
		c, _ := newTestController(t)
		assert.ErrorIs(t, c.ReloadFromFile("x"), ErrNoLoader)
	})

	t.Run("from graph", func(t *testing.T) {
		c, rec := newTestController(t)
		connected(t, c)
		rec.reset()

		require.NoError(t, c.ReloadFrom(domain.NewGraph()))
		assert.Equal(t, EventGraphReset, rec.events[0].Type)
		assert.Equal(t, EventGraphResetCompleted, rec.events[len(rec.events)-1].Type)
		assert.Zero(t, c.Graph().NodeCount())
	})
}

func TestControllerReentrancy(t *testing.T) {
	c, _ := newTestController(t)
	var inner error
	sub := c.Subscribe(func(e Event) {
		if e.Type == EventNodeAdded && e.Node.ID == "A" {
			_, inner = c.AddNode("B", "", geometry.Point3{})
		}
	})
	defer sub.Unsubscribe()

	_, err := c.AddNode("A", "", geometry.Point3{})
	require.NoError(t, err)

	assert.ErrorIs(t, inner, ErrReentrantMutation)
	assert.Nil(t, c.Graph().Node("B"))

	_, err = c.AddNode("C", "", geometry.Point3{})
	assert.NoError(t, err)
}

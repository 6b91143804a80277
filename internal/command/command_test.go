package command

import (
	"errors"
	"sort"
	"testing"

	"digraph/internal/domain"
	"digraph/internal/geometry"
	"digraph/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Controller = (*service.Controller)(nil)

// structure is the comparable shape of a graph: node ids, names, positions
// and the set of edge endpoints
type structure struct {
	Nodes map[string]string
	Pos   map[string]geometry.Point3
	Pins  map[string][]string
	Edges []string
}

func shape(g *domain.Graph) structure {
	s := structure{
		Nodes: make(map[string]string),
		Pos:   make(map[string]geometry.Point3),
		Pins:  make(map[string][]string),
	}
	for _, n := range g.Nodes() {
		s.Nodes[n.ID] = n.Name
		s.Pos[n.ID] = n.Position
		for _, p := range n.Pins() {
			s.Pins[n.ID] = append(s.Pins[n.ID], p.ID)
		}
	}
	for _, e := range g.Edges() {
		s.Edges = append(s.Edges, e.ID+":"+e.SourceNodeID+"/"+e.SourcePinID+"->"+e.TargetNodeID+"/"+e.TargetPinID)
	}
	sort.Strings(s.Edges)
	return s
}

type fixture struct {
	ctrl  *service.Controller
	stack *Stack
	aOut  string
	bIn   string
}

// newFixture builds A(0,0,0) with one output pin and B(10,0,0) with one input
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := service.NewController(domain.NewGraph())
	_, err := ctrl.AddNode("A", "Alpha", geometry.Pt(0, 0, 0))
	require.NoError(t, err)
	_, err = ctrl.AddNode("B", "Beta", geometry.Pt(10, 0, 0))
	require.NoError(t, err)
	out, err := ctrl.InsertPin("A", domain.Output, 0)
	require.NoError(t, err)
	in, err := ctrl.InsertPin("B", domain.Input, 0)
	require.NoError(t, err)
	return &fixture{ctrl: ctrl, stack: NewStack(), aOut: out.ID, bIn: in.ID}
}

func TestScenarioAddEdgeUndoRedo(t *testing.T) {
	f := newFixture(t)
	cmd, err := NewAddEdge(f.ctrl, "A", f.aOut, "B", f.bIn)
	require.NoError(t, err)

	require.NoError(t, f.stack.Exec(cmd))
	g := f.ctrl.Graph()
	require.Equal(t, 1, g.EdgeCount())
	e := g.Edges()[0]
	assert.Equal(t, "A", e.SourceNodeID)
	assert.Equal(t, f.aOut, e.SourcePinID)
	assert.Equal(t, "B", e.TargetNodeID)
	assert.Equal(t, f.bIn, e.TargetPinID)
	id := e.ID

	require.NoError(t, f.stack.Undo())
	assert.Zero(t, g.EdgeCount())

	require.NoError(t, f.stack.Redo())
	require.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, id, g.Edges()[0].ID)
}

func TestUndoIsInverse(t *testing.T) {
	f := newFixture(t)
	before := shape(f.ctrl.Graph())

	addNode, _ := NewAddNode(f.ctrl, "C", "Gamma", geometry.Pt(5, 5, 0))
	require.NoError(t, f.stack.Exec(addNode))
	move, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(-3, 4, 0))
	require.NoError(t, f.stack.Exec(move))
	connect, err := AutoConnect(f.ctrl, "A", f.aOut, "C", "")
	require.NoError(t, err)
	require.NoError(t, f.stack.Exec(connect))
	add, _ := NewAddEdge(f.ctrl, "A", f.aOut, "B", f.bIn)
	require.NoError(t, f.stack.Exec(add))
	rename, _ := NewRenameNode(f.ctrl, "B", "Bee")
	require.NoError(t, f.stack.Exec(rename))
	remove, _ := NewRemoveNode(f.ctrl, "C")
	require.NoError(t, f.stack.Exec(remove))

	after := shape(f.ctrl.Graph())
	for f.stack.CanUndo() {
		require.NoError(t, f.stack.Undo())
	}
	assert.Equal(t, before, shape(f.ctrl.Graph()))

	for f.stack.CanRedo() {
		require.NoError(t, f.stack.Redo())
	}
	assert.Equal(t, after, shape(f.ctrl.Graph()))
}

func TestNewActionClearsRedo(t *testing.T) {
	f := newFixture(t)
	first, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(1, 0, 0))
	require.NoError(t, f.stack.Exec(first))
	require.NoError(t, f.stack.Undo())
	require.True(t, f.stack.CanRedo())

	second, _ := NewMoveNode(f.ctrl, "B", geometry.Pt(1, 1, 0))
	require.NoError(t, f.stack.Exec(second))

	assert.False(t, f.stack.CanRedo())
	require.NoError(t, f.stack.Redo())
	assert.Equal(t, geometry.Pt(0, 0, 0), f.ctrl.Graph().Node("A").Position)
}

func TestMoveCoalescing(t *testing.T) {
	t.Run("merged moves undo to the first old position", func(t *testing.T) {
		f := newFixture(t)
		m1, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(1, 0, 0))
		require.NoError(t, f.stack.ExecOrMerge(m1))
		m2, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(2, 0, 0))
		require.NoError(t, f.stack.ExecOrMerge(m2))
		m3, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(3, 0, 0))
		require.NoError(t, f.stack.ExecOrMerge(m3))

		assert.Equal(t, []string{"Move Node"}, f.stack.UndoNames())
		assert.Equal(t, geometry.Pt(3, 0, 0), m1.NewPosition())

		require.NoError(t, f.stack.Undo())
		assert.Equal(t, geometry.Pt(0, 0, 0), f.ctrl.Graph().Node("A").Position)
		assert.False(t, f.stack.CanUndo())

		require.NoError(t, f.stack.Redo())
		assert.Equal(t, geometry.Pt(3, 0, 0), f.ctrl.Graph().Node("A").Position)
	})

	t.Run("direct merge keeps old position", func(t *testing.T) {
		f := newFixture(t)
		m1, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(1, 0, 0))
		m2, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(2, 0, 0))
		m3, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(3, 0, 0))
		assert.True(t, m1.TryMergeWith(m2))
		assert.True(t, m1.TryMergeWith(m3))
		assert.Equal(t, geometry.Pt(0, 0, 0), m1.OldPosition())
		assert.Equal(t, geometry.Pt(3, 0, 0), m1.NewPosition())
	})

	t.Run("different nodes do not merge", func(t *testing.T) {
		f := newFixture(t)
		m1, _ := NewMoveNode(f.ctrl, "A", geometry.Pt(1, 0, 0))
		require.NoError(t, f.stack.ExecOrMerge(m1))
		m2, _ := NewMoveNode(f.ctrl, "B", geometry.Pt(2, 0, 0))
		require.NoError(t, f.stack.ExecOrMerge(m2))
		assert.Len(t, f.stack.UndoNames(), 2)

		add, _ := NewAddEdge(f.ctrl, "A", f.aOut, "B", f.bIn)
		assert.False(t, m1.TryMergeWith(add))
	})
}

type failing struct {
	doErr, undoErr error
	done, undone   int
}

func (c *failing) Do() error    { c.done++; return c.doErr }
func (c *failing) Undo() error  { c.undone++; return c.undoErr }
func (c *failing) Name() string { return "Failing" }

func TestStackFailures(t *testing.T) {
	t.Run("failed do is not pushed", func(t *testing.T) {
		s := NewStack()
		err := s.Exec(&failing{doErr: errors.New("boom")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Failing")
		assert.False(t, s.CanUndo())
	})

	t.Run("failed do keeps redo history", func(t *testing.T) {
		s := NewStack()
		require.NoError(t, s.Exec(&failing{}))
		require.NoError(t, s.Undo())
		require.Error(t, s.Exec(&failing{doErr: errors.New("boom")}))
		assert.True(t, s.CanRedo())
	})

	t.Run("failed undo leaves stacks unchanged", func(t *testing.T) {
		s := NewStack()
		cmd := &failing{undoErr: errors.New("stuck")}
		require.NoError(t, s.Exec(cmd))
		assert.Error(t, s.Undo())
		assert.True(t, s.CanUndo())
		assert.False(t, s.CanRedo())
	})

	t.Run("failed redo leaves stacks unchanged", func(t *testing.T) {
		s := NewStack()
		cmd := &failing{}
		require.NoError(t, s.Exec(cmd))
		require.NoError(t, s.Undo())
		cmd.doErr = errors.New("gone")
		assert.Error(t, s.Redo())
		assert.True(t, s.CanRedo())
		assert.False(t, s.CanUndo())
	})

	t.Run("empty stacks are no-ops", func(t *testing.T) {
		s := NewStack()
		assert.NoError(t, s.Undo())
		assert.NoError(t, s.Redo())
		assert.ErrorIs(t, s.Exec(nil), ErrNilCommand)
	})

	t.Run("real command failure is not pushed", func(t *testing.T) {
		f := newFixture(t)
		reversed, _ := NewAddEdge(f.ctrl, "B", f.bIn, "A", f.aOut)
		err := f.stack.Exec(reversed)
		assert.ErrorIs(t, err, domain.ErrInvalidDirection)
		assert.False(t, f.stack.CanUndo())
	})
}

func TestStackHistory(t *testing.T) {
	s := NewStack(WithLimit(2))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Exec(&failing{}))
	}
	assert.Len(t, s.UndoNames(), 2)

	require.NoError(t, s.Undo())
	assert.Equal(t, []string{"Failing"}, s.RedoNames())

	s.Clear()
	assert.False(t, s.CanUndo())
	assert.False(t, s.CanRedo())
}

func TestNilController(t *testing.T) {
	_, err := NewAddEdge(nil, "a", "b", "c", "d")
	assert.ErrorIs(t, err, ErrNilController)
	_, err = NewInsertPin(nil, "a", domain.Input, 0)
	assert.ErrorIs(t, err, ErrNilController)
	_, err = AutoConnect(nil, "a", "b", "c", "")
	assert.ErrorIs(t, err, ErrNilController)
}

func TestRemoveEdgeCommand(t *testing.T) {
	f := newFixture(t)
	e, err := f.ctrl.AddEdge("A", f.aOut, "B", f.bIn)
	require.NoError(t, err)

	cmd, err := NewRemoveEdge(f.ctrl, e.ID)
	require.NoError(t, err)
	require.NoError(t, f.stack.Exec(cmd))
	assert.Zero(t, f.ctrl.Graph().EdgeCount())

	require.NoError(t, f.stack.Undo())
	restored := f.ctrl.Graph().Edge(e.ID)
	require.NotNil(t, restored)
	assert.Equal(t, *e, *restored)

	_, err = NewRemoveEdge(f.ctrl, "missing")
	assert.ErrorIs(t, err, domain.ErrEdgeNotFound)
}

func TestPinCommands(t *testing.T) {
	t.Run("insert then undo removes that pin", func(t *testing.T) {
		f := newFixture(t)
		cmd, _ := NewInsertPin(f.ctrl, "A", domain.Output, 0)
		require.NoError(t, f.stack.Exec(cmd))

		outs := f.ctrl.Graph().Node("A").Outputs
		require.Len(t, outs, 2)
		assert.Equal(t, cmd.PinID(), outs[0].ID)
		assert.Equal(t, 1, outs[1].Index)

		require.NoError(t, f.stack.Undo())
		outs = f.ctrl.Graph().Node("A").Outputs
		require.Len(t, outs, 1)
		assert.Equal(t, f.aOut, outs[0].ID)
		assert.Equal(t, 0, outs[0].Index)
	})

	t.Run("remove then undo restores position and attributes", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ctrl.InsertPin("B", domain.Input, 1, domain.WithPinID("extra"), domain.WithLabel("x"), domain.WithCapacity(4))
		require.NoError(t, err)

		cmd, err := NewRemovePin(f.ctrl, "B", f.bIn)
		require.NoError(t, err)
		require.NoError(t, f.stack.Exec(cmd))
		assert.Equal(t, "extra", f.ctrl.Graph().Node("B").Inputs[0].ID)

		require.NoError(t, f.stack.Undo())
		ins := f.ctrl.Graph().Node("B").Inputs
		assert.Equal(t, []string{f.bIn, "extra"}, []string{ins[0].ID, ins[1].ID})
		assert.Equal(t, 4, ins[1].Capacity)
	})

	t.Run("remove pin in use fails and is not pushed", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ctrl.AddEdge("A", f.aOut, "B", f.bIn)
		require.NoError(t, err)
		cmd, err := NewRemovePin(f.ctrl, "A", f.aOut)
		require.NoError(t, err)
		assert.ErrorIs(t, f.stack.Exec(cmd), domain.ErrPinInUse)
		assert.False(t, f.stack.CanUndo())
	})
}

func TestComposite(t *testing.T) {
	t.Run("insert pin then connect, undone in reverse", func(t *testing.T) {
		f := newFixture(t)
		insert, _ := NewInsertPin(f.ctrl, "B", domain.Input, 0)
		add, _ := NewAddEdge(f.ctrl, "A", f.aOut, "B", insert.PinID())
		cmd, err := NewComposite("", insert, add)
		require.NoError(t, err)
		assert.Equal(t, "Insert Pin + Add Edge", cmd.Name())

		require.NoError(t, f.stack.Exec(cmd))
		assert.Equal(t, 1, f.ctrl.Graph().EdgeCount())
		assert.Len(t, f.ctrl.Graph().Node("B").Inputs, 2)

		require.NoError(t, f.stack.Undo())
		assert.Zero(t, f.ctrl.Graph().EdgeCount())
		assert.Len(t, f.ctrl.Graph().Node("B").Inputs, 1)
	})

	t.Run("failing second rolls back first", func(t *testing.T) {
		f := newFixture(t)
		insert, _ := NewInsertPin(f.ctrl, "B", domain.Input, 0)
		bad, _ := NewAddEdge(f.ctrl, "A", "nope", "B", insert.PinID())
		cmd, err := NewComposite("Connect", insert, bad)
		require.NoError(t, err)

		assert.ErrorIs(t, f.stack.Exec(cmd), domain.ErrPinNotFound)
		assert.Len(t, f.ctrl.Graph().Node("B").Inputs, 1)
		assert.False(t, f.stack.CanUndo())
	})

	t.Run("nil parts are rejected", func(t *testing.T) {
		_, err := NewComposite("x", nil, &failing{})
		assert.ErrorIs(t, err, ErrNilCommand)
	})
}

func TestAutoConnect(t *testing.T) {
	t.Run("uses the given pin when it has room", func(t *testing.T) {
		f := newFixture(t)
		cmd, err := AutoConnect(f.ctrl, "A", f.aOut, "B", f.bIn)
		require.NoError(t, err)
		assert.Empty(t, cmd.InsertedPinID())

		require.NoError(t, f.stack.Exec(cmd))
		assert.Equal(t, f.bIn, f.ctrl.Graph().Edge(cmd.EdgeID()).TargetPinID)
	})

	t.Run("inserts a pin when the target is full", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ctrl.AddEdge("A", f.aOut, "B", f.bIn)
		require.NoError(t, err)

		cmd, err := AutoConnect(f.ctrl, "A", f.aOut, "B", f.bIn)
		require.NoError(t, err)
		require.NotEmpty(t, cmd.InsertedPinID())
		require.NoError(t, f.stack.Exec(cmd))

		ins := f.ctrl.Graph().Node("B").Inputs
		require.Len(t, ins, 2)
		assert.Equal(t, cmd.InsertedPinID(), ins[1].ID)

		require.NoError(t, f.stack.Undo())
		assert.Len(t, f.ctrl.Graph().Node("B").Inputs, 1)
		assert.Equal(t, 1, f.ctrl.Graph().EdgeCount())

		require.NoError(t, f.stack.Redo())
		assert.NotNil(t, f.ctrl.Graph().Edge(cmd.EdgeID()))
	})

	t.Run("unknown target", func(t *testing.T) {
		f := newFixture(t)
		_, err := AutoConnect(f.ctrl, "A", f.aOut, "Z", "")
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	})
}

func TestRemoveNodeCommand(t *testing.T) {
	f := newFixture(t)
	e, err := f.ctrl.AddEdge("A", f.aOut, "B", f.bIn)
	require.NoError(t, err)
	before := shape(f.ctrl.Graph())

	cmd, err := NewRemoveNode(f.ctrl, "B")
	require.NoError(t, err)
	require.NoError(t, f.stack.Exec(cmd))
	assert.Nil(t, f.ctrl.Graph().Node("B"))
	assert.Zero(t, f.ctrl.Graph().EdgeCount())

	require.NoError(t, f.stack.Undo())
	assert.Equal(t, before, shape(f.ctrl.Graph()))
	assert.NotNil(t, f.ctrl.Graph().Edge(e.ID))
}

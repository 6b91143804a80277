package editor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"digraph/internal/command"
	"digraph/internal/domain"
	"digraph/internal/geometry"
	"digraph/internal/repository/sqlite"
	"digraph/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// buildAB adds nodes A and B, an output on A, an input on B and an edge
func buildAB(t *testing.T, s *Session) string {
	t.Helper()
	run := func(build BuildFunc) command.Command {
		cmd, err := s.Run(build, false)
		require.NoError(t, err)
		return cmd
	}
	run(func(c command.Controller) (command.Command, error) {
		return command.NewAddNode(c, "A", "Alpha", geometry.Pt(0, 0, 0))
	})
	run(func(c command.Controller) (command.Command, error) {
		return command.NewAddNode(c, "B", "Beta", geometry.Pt(5, 0, 0))
	})
	out := run(func(c command.Controller) (command.Command, error) {
		return command.NewInsertPin(c, "A", domain.Output, 0)
	}).(*command.InsertPin).PinID()
	in := run(func(c command.Controller) (command.Command, error) {
		return command.NewInsertPin(c, "B", domain.Input, 0)
	}).(*command.InsertPin).PinID()
	return run(func(c command.Controller) (command.Command, error) {
		return command.NewAddEdge(c, "A", out, "B", in)
	}).(*command.AddEdge).EdgeID()
}

func TestSession_EditUndoRedo(t *testing.T) {
	s := NewSession(WithLogger(zaptest.NewLogger(t)))
	edgeID := buildAB(t, s)

	snap := s.Snapshot()
	assert.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, edgeID, snap.Edges[0].ID)
	assert.True(t, s.Dirty())

	undo, redo := s.History()
	assert.Equal(t, []string{"Add Edge", "Insert Pin", "Insert Pin", "Add Node", "Add Node"}, undo)
	assert.Empty(t, redo)

	require.NoError(t, s.Undo())
	assert.Empty(t, s.Snapshot().Edges)
	require.NoError(t, s.Redo())
	require.Len(t, s.Snapshot().Edges, 1)
	assert.Equal(t, edgeID, s.Snapshot().Edges[0].ID)
}

func TestSession_RunMergesMoves(t *testing.T) {
	s := NewSession()
	buildAB(t, s)

	for _, x := range []float64{1, 2, 3} {
		_, err := s.Run(func(c command.Controller) (command.Command, error) {
			return command.NewMoveNode(c, "A", geometry.Pt(x, 0, 0))
		}, true)
		require.NoError(t, err)
	}

	undo, _ := s.History()
	assert.Equal(t, "Move Node", undo[0])
	assert.Equal(t, "Add Edge", undo[1])

	require.NoError(t, s.Undo())
	assert.Equal(t, geometry.Pt(0, 0, 0), s.Snapshot().Nodes[0].Position)
}

func TestSession_FailedBuildLeavesHistory(t *testing.T) {
	s := NewSession()
	_, err := s.Run(func(c command.Controller) (command.Command, error) {
		return command.NewRemoveEdge(c, "missing")
	}, false)
	assert.True(t, domain.IsNotFound(err))

	undo, _ := s.History()
	assert.Empty(t, undo)
	assert.False(t, s.Dirty())
}

func TestSession_SaveOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.dgml")

	s := NewSession()
	edgeID := buildAB(t, s)

	t.Run("save without a path fails", func(t *testing.T) {
		assert.ErrorIs(t, s.Save(""), ErrNoPath)
	})

	require.NoError(t, s.Save(path))
	assert.False(t, s.Dirty())
	assert.Equal(t, path, s.Path())
	assert.Equal(t, []string{path, filepath.Join(dir, "graph.dgml-layout")}, s.WatchPaths())

	other := NewSession()
	var events []service.EventType
	other.Events().Subscribe(func(e service.Event) { events = append(events, e.Type) })

	require.NoError(t, other.Open(filepath.Join(dir, "graph.dgml-layout")))
	assert.Equal(t, path, other.Path())
	assert.Equal(t, service.EventGraphReset, events[0])
	assert.Equal(t, service.EventGraphResetCompleted, events[len(events)-1])

	snap := other.Snapshot()
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, edgeID, snap.Edges[0].ID)
	assert.Equal(t, geometry.Pt(5, 0, 0), snap.Nodes[1].Position)

	undo, _ := other.History()
	assert.Empty(t, undo)

	t.Run("open of a missing file keeps the document", func(t *testing.T) {
		err := other.Open(filepath.Join(dir, "missing.dgml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing.dgml")
		assert.Len(t, other.Snapshot().Nodes, 2)
	})
}

func TestSession_ExternalChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.dgml")

	s := NewSession()
	buildAB(t, s)
	require.NoError(t, s.Save(path))

	t.Run("own save is ignored", func(t *testing.T) {
		reloaded, err := s.ExternalChange(path)
		require.NoError(t, err)
		assert.False(t, reloaded)
	})

	t.Run("unrelated file is ignored", func(t *testing.T) {
		reloaded, err := s.ExternalChange(filepath.Join(dir, "other.dgml"))
		require.NoError(t, err)
		assert.False(t, reloaded)
	})

	t.Run("foreign write reloads", func(t *testing.T) {
		doc := `<?xml version="1.0" encoding="utf-8"?>
<DirectedGraph xmlns="http://schemas.microsoft.com/vs/2009/dgml">
  <Nodes><Node Id="X" Label="Ex"/><Node Id="Y"/><Node Id="Z"/></Nodes>
  <Links><Link Source="X" Target="Y"/></Links>
</DirectedGraph>`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
		require.NoError(t, os.Remove(filepath.Join(dir, "graph.dgml-layout")))
		// mtime resolution on some filesystems is coarse
		future := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, future, future))

		reloaded, err := s.ExternalChange(path)
		require.NoError(t, err)
		assert.True(t, reloaded)

		snap := s.Snapshot()
		assert.Len(t, snap.Nodes, 3)
		assert.Len(t, snap.Edges, 1)
		undo, _ := s.History()
		assert.Empty(t, undo)
	})
}

func TestSession_Autosave(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	s := NewSession(WithSnapshotStore(repo))
	buildAB(t, s)

	docs, err := repo.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, UntitledKey, docs[0].Key)
	assert.Equal(t, 2, docs[0].Nodes)
	assert.Equal(t, 1, docs[0].Edges)

	t.Run("recover restores the autosaved graph", func(t *testing.T) {
		fresh := NewSession(WithSnapshotStore(repo))
		require.NoError(t, fresh.Recover(ctx, ""))
		assert.Equal(t, s.Snapshot().Edges, fresh.Snapshot().Edges)
		assert.True(t, fresh.Dirty())
	})

	t.Run("recover of an unknown key fails", func(t *testing.T) {
		fresh := NewSession(WithSnapshotStore(repo))
		assert.ErrorIs(t, fresh.Recover(ctx, "nope"), ErrNothingToRecover)
	})

	t.Run("saving drops the untitled snapshot", func(t *testing.T) {
		require.NoError(t, s.Save(filepath.Join(t.TempDir(), "g.dgml")))
		docs, err := repo.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("without a store recover fails", func(t *testing.T) {
		assert.ErrorIs(t, NewSession().Recover(ctx, ""), ErrNothingToRecover)
	})
}

func TestSession_UndoRedoOnEmptyHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "g.dgml")
	repo := newRepo(t)

	s := NewSession(WithSnapshotStore(repo))
	buildAB(t, s)
	require.NoError(t, s.Save(path))

	opened := NewSession(WithSnapshotStore(repo))
	require.NoError(t, opened.Open(path))
	require.False(t, opened.Dirty())

	require.NoError(t, opened.Undo())
	require.NoError(t, opened.Redo())
	assert.False(t, opened.Dirty())

	docs, err := repo.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSession_NewAndDo(t *testing.T) {
	s := NewSession()
	buildAB(t, s)

	require.NoError(t, s.Do(func(ctrl *service.Controller) error {
		return ctrl.SelectNode("A", false)
	}))
	assert.Equal(t, []string{"A"}, s.Selection())

	require.NoError(t, s.New())
	assert.Empty(t, s.Snapshot().Nodes)
	assert.Empty(t, s.Selection())
	assert.False(t, s.Dirty())
	assert.Empty(t, s.WatchPaths())
}

func TestSession_Import(t *testing.T) {
	src := NewSession()
	buildAB(t, src)
	snap := src.Snapshot()

	s := NewSession()
	require.NoError(t, s.Import(snap))
	assert.Equal(t, snap.Edges, s.Snapshot().Edges)
	assert.True(t, s.Dirty())

	t.Run("dangling edge is rejected", func(t *testing.T) {
		bad := domain.NewSnapshot()
		bad.AddNode(domain.NewNode("A", ""))
		bad.AddEdge(domain.Edge{ID: "e", SourceNodeID: "A", SourcePinID: "p", TargetNodeID: "B", TargetPinID: "q"})
		err := s.Import(bad)
		require.Error(t, err)
		assert.Len(t, s.Snapshot().Nodes, 2)
	})
}

func TestSession_PathObserver(t *testing.T) {
	var seen [][]string
	s := NewSession(WithPathObserver(func(paths []string) { seen = append(seen, paths) }))
	buildAB(t, s)

	path := filepath.Join(t.TempDir(), "graph.dgml")
	require.NoError(t, s.Save(path))
	require.NoError(t, s.Save(""))
	require.NoError(t, s.New())

	require.Len(t, seen, 2)
	assert.Equal(t, []string{path, filepath.Join(filepath.Dir(path), "graph.dgml-layout")}, seen[0])
	assert.Nil(t, seen[1])
}

package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"digraph/internal/command"
	"digraph/internal/domain"
	"digraph/internal/persistence"
	"digraph/internal/repository"
	"digraph/internal/service"

	"go.uber.org/zap"
)

// UntitledKey is the autosave key of a document that has never been saved
const UntitledKey = "untitled"

var (
	// ErrNoPath is returned by Save when neither an explicit path nor the
	// document's own path is known
	ErrNoPath = errors.New("editor: document has no path")
	// ErrNothingToRecover is returned by Recover when no snapshot is stored
	ErrNothingToRecover = errors.New("editor: no autosaved snapshot")
)

// DocumentStore loads and saves documents and maps between their paths
type DocumentStore interface {
	persistence.Store
	persistence.PathResolver
}

// BuildFunc creates a command bound to the session's controller
type BuildFunc func(ctrl command.Controller) (command.Command, error)

// Session is a mutex guarded editing session over one document
type Session struct {
	mu        sync.Mutex
	ctrl      *service.Controller
	stack     *command.Stack
	files     DocumentStore
	snapshots repository.SnapshotStore
	logger    *zap.Logger

	graphOpts    []domain.GraphOption
	historyLimit int
	bus          *service.EventBus
	autosaveTTL  time.Duration

	dirty     bool
	stamps    map[string]fileStamp
	onPaths   func(paths []string)
	lastPaths string
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentStore sets the store used by Open, Save and reloads
func WithDocumentStore(store DocumentStore) Option {
	return func(s *Session) {
		if store != nil {
			s.files = store
		}
	}
}

// WithSnapshotStore enables autosave into store
func WithSnapshotStore(store repository.SnapshotStore) Option {
	return func(s *Session) { s.snapshots = store }
}

// WithGraphOptions sets the options applied to new graphs
func WithGraphOptions(opts ...domain.GraphOption) Option {
	return func(s *Session) { s.graphOpts = append(s.graphOpts, opts...) }
}

// WithHistoryLimit bounds the undo stack. Zero means unlimited.
func WithHistoryLimit(limit int) Option {
	return func(s *Session) { s.historyLimit = limit }
}

// WithEventBus publishes controller notifications on bus
func WithEventBus(bus *service.EventBus) Option {
	return func(s *Session) { s.bus = bus }
}

// WithPathObserver registers fn to be called with the document's structure
// and layout paths whenever they change. It runs with the session locked and
// must not call back into the session.
func WithPathObserver(fn func(paths []string)) Option {
	return func(s *Session) { s.onPaths = fn }
}

// NewSession creates a session over an empty graph
func NewSession(opts ...Option) *Session {
	s := &Session{
		logger:      zap.NewNop(),
		autosaveTTL: 5 * time.Second,
		stamps:      make(map[string]fileStamp),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.files == nil {
		s.files = persistence.NewFileStore(
			persistence.WithGraphOptions(s.graphOpts...),
			persistence.WithLogger(s.logger),
		)
	}

	s.ctrl = service.NewController(domain.NewGraph(s.graphOpts...),
		service.WithLogger(s.logger),
		service.WithEventBus(s.bus),
		service.WithLoader(s.files),
	)
	s.stack = command.NewStack(
		command.WithLimit(s.historyLimit),
		command.WithLogger(s.logger),
	)
	return s
}

// Events returns the bus controller notifications are published on
func (s *Session) Events() *service.EventBus {
	return s.ctrl.Events()
}

// Open replaces the current document with the one at path and clears the
// history
func (s *Session) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path = s.files.StructurePathFor(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if err := s.ctrl.ReloadFromFile(path); err != nil {
		return err
	}
	s.stack.Clear()
	s.dirty = false
	s.stamp(path)
	s.pathsChanged()
	return nil
}

// New replaces the current document with an empty, untitled graph
func (s *Session) New() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctrl.ReloadFrom(domain.NewGraph(s.graphOpts...)); err != nil {
		return err
	}
	s.stack.Clear()
	s.dirty = false
	s.stamps = make(map[string]fileStamp)
	s.pathsChanged()
	return nil
}

// Import replaces the current document with the contents of snapshot. The
// imported document keeps the snapshot's path, is marked dirty and starts
// with an empty history.
func (s *Session) Import(snapshot *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := domain.FromSnapshot(snapshot, s.graphOpts...)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := s.ctrl.ReloadFrom(g); err != nil {
		return err
	}
	s.stack.Clear()
	s.pathsChanged()
	return s.changed(nil)
}

// Save writes the document. An empty path saves to the document's own path.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.ctrl.Graph()
	if path == "" {
		path = g.FilePath
	}
	if path == "" {
		return ErrNoPath
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	oldKey := s.autosaveKey()
	saved, err := s.files.Save(g, path)
	if err != nil {
		return err
	}
	if err := s.ctrl.SetFilePath(saved); err != nil {
		return err
	}
	s.dirty = false
	s.stamp(saved)
	s.pathsChanged()
	s.logger.Info("document saved", zap.String("path", saved))

	if s.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.autosaveTTL)
		defer cancel()
		if err := s.snapshots.DeleteSnapshot(ctx, oldKey); err != nil {
			s.logger.Warn("failed to drop autosave", zap.String("key", oldKey), zap.Error(err))
		}
	}
	return nil
}

// Exec runs cmd and pushes it onto the undo stack
func (s *Session) Exec(cmd command.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed(s.stack.Exec(cmd))
}

// ExecOrMerge runs cmd, folding it into the previous command when possible
func (s *Session) ExecOrMerge(cmd command.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed(s.stack.ExecOrMerge(cmd))
}

// Run builds a command against the controller and executes it, all under the
// session lock. When merge is set the command may be coalesced with the
// previous one.
func (s *Session) Run(build BuildFunc, merge bool) (command.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, err := build(s.ctrl)
	if err != nil {
		return nil, err
	}
	if merge {
		err = s.stack.ExecOrMerge(cmd)
	} else {
		err = s.stack.Exec(cmd)
	}
	if err := s.changed(err); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Undo reverts the most recent command. With nothing to undo the document
// is left clean.
func (s *Session) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stack.CanUndo() {
		return nil
	}
	return s.changed(s.stack.Undo())
}

// Redo re-applies the most recently undone command
func (s *Session) Redo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stack.CanRedo() {
		return nil
	}
	return s.changed(s.stack.Redo())
}

// Do runs fn with the controller under the session lock. Use it for
// operations that do not belong on the undo stack, such as selection.
func (s *Session) Do(fn func(ctrl *service.Controller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.ctrl)
}

// Snapshot returns a deep copy of the current graph
func (s *Session) Snapshot() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Graph().Snapshot()
}

// Selection returns the selected node ids
func (s *Session) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Selection()
}

// History returns the undo and redo command names, most recent first
func (s *Session) History() (undo, redo []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.UndoNames(), s.stack.RedoNames()
}

// Dirty reports whether the document changed since it was opened or saved
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Path returns the document's structure path, empty when untitled
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Graph().FilePath
}

// WatchPaths returns the structure and layout paths of the open document
func (s *Session) WatchPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchPaths()
}

func (s *Session) watchPaths() []string {
	path := s.ctrl.Graph().FilePath
	if path == "" {
		return nil
	}
	return []string{path, s.files.LayoutPathFor(path)}
}

// pathsChanged informs the path observer if the document moved
func (s *Session) pathsChanged() {
	if s.onPaths == nil {
		return
	}
	current := s.ctrl.Graph().FilePath
	if current == s.lastPaths {
		return
	}
	s.lastPaths = current
	s.onPaths(s.watchPaths())
}

// ExternalChange handles a change notification for path. It reloads the
// document when path belongs to it and the file differs from what the
// session last wrote or read. It reports whether a reload happened.
func (s *Session) ExternalChange(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.ctrl.Graph().FilePath
	if current == "" {
		return false, nil
	}
	if s.files.StructurePathFor(path) != current {
		return false, nil
	}
	if s.unchanged(path) {
		s.logger.Debug("ignoring own write", zap.String("path", path))
		return false, nil
	}
	if s.dirty {
		s.logger.Warn("discarding unsaved changes on external reload", zap.String("path", current))
	}

	if err := s.ctrl.ReloadFromFile(current); err != nil {
		return false, err
	}
	s.stack.Clear()
	s.dirty = false
	s.stamp(current)
	return true, nil
}

// Recover replaces the current document with the autosaved snapshot stored
// under key. An empty key means the current document's key. The recovered
// document is marked dirty.
func (s *Session) Recover(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshots == nil {
		return ErrNothingToRecover
	}
	if key == "" {
		key = s.autosaveKey()
	}
	snapshot, err := s.snapshots.LoadSnapshot(ctx, key)
	if err != nil {
		return fmt.Errorf("recover %s: %w", key, err)
	}
	if snapshot == nil {
		return fmt.Errorf("recover %s: %w", key, ErrNothingToRecover)
	}
	g, err := domain.FromSnapshot(snapshot, s.graphOpts...)
	if err != nil {
		return fmt.Errorf("recover %s: %w", key, err)
	}
	if err := s.ctrl.ReloadFrom(g); err != nil {
		return err
	}
	s.stack.Clear()
	s.dirty = true
	s.pathsChanged()
	s.logger.Info("document recovered", zap.String("key", key))
	return nil
}

// changed marks the document dirty and autosaves it when err is nil
func (s *Session) changed(err error) error {
	if err != nil {
		return err
	}
	s.dirty = true
	s.autosave()
	return nil
}

func (s *Session) autosave() {
	if s.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.autosaveTTL)
	defer cancel()

	key := s.autosaveKey()
	if err := s.snapshots.SaveSnapshot(ctx, key, s.ctrl.Graph().Snapshot()); err != nil {
		s.logger.Warn("autosave failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Session) autosaveKey() string {
	if path := s.ctrl.Graph().FilePath; path != "" {
		return path
	}
	return UntitledKey
}

// stamp records the state of the document's files as last seen by the session
func (s *Session) stamp(structurePath string) {
	s.stamps = make(map[string]fileStamp)
	for _, p := range []string{structurePath, s.files.LayoutPathFor(structurePath)} {
		if info, err := os.Stat(p); err == nil {
			s.stamps[p] = fileStamp{modTime: info.ModTime(), size: info.Size()}
		}
	}
}

func (s *Session) unchanged(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	seen, ok := s.stamps[path]
	info, err := os.Stat(path)
	if err != nil {
		return !ok
	}
	return ok && seen.modTime.Equal(info.ModTime()) && seen.size == info.Size()
}

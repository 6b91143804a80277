// Package persistence saves and loads graph documents as a pair of files: a
// DGML structure document and a layout overlay next to it.
package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"digraph/internal/codec"
	"digraph/internal/domain"

	"go.uber.org/zap"
)

const (
	// DefaultStructureExt is the extension of structure documents
	DefaultStructureExt = ".dgml"
	// DefaultLayoutExt is the extension of layout overlays
	DefaultLayoutExt = ".dgml-layout"
)

// ErrFileNotFound is returned by Load when the structure document is missing
var ErrFileNotFound = errors.New("persistence: file not found")

// Store saves and loads whole graphs
type Store interface {
	Save(g *domain.Graph, path string) (string, error)
	Load(path string) (*domain.Graph, error)
}

// PathResolver maps between a structure document and its layout overlay
type PathResolver interface {
	LayoutPathFor(structurePath string) string
	StructurePathFor(layoutPath string) string
}

// FileStore is the DGML file pair implementation of Store and PathResolver
type FileStore struct {
	codec        *codec.DGMLCodec
	structureExt string
	layoutExt    string
	logger       *zap.Logger
}

var (
	_ Store        = (*FileStore)(nil)
	_ PathResolver = (*FileStore)(nil)
)

// Option configures a FileStore
type Option func(*FileStore)

// WithExtensions overrides the structure and layout extensions
func WithExtensions(structureExt, layoutExt string) Option {
	return func(s *FileStore) {
		if structureExt != "" {
			s.structureExt = normalizeExt(structureExt)
		}
		if layoutExt != "" {
			s.layoutExt = normalizeExt(layoutExt)
		}
	}
}

// WithGraphOptions sets the options applied to loaded graphs
func WithGraphOptions(opts ...domain.GraphOption) Option {
	return func(s *FileStore) { s.codec = codec.NewDGMLCodec(opts...) }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileStore creates a file store
func NewFileStore(opts ...Option) *FileStore {
	s := &FileStore{
		codec:        codec.NewDGMLCodec(),
		structureExt: DefaultStructureExt,
		layoutExt:    DefaultLayoutExt,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LayoutPathFor replaces the extension of a structure path with the layout
// extension
func (s *FileStore) LayoutPathFor(structurePath string) string {
	return changeExt(structurePath, s.layoutExt)
}

// StructurePathFor maps a layout path back to its structure path. Any other
// path is returned unchanged.
func (s *FileStore) StructurePathFor(layoutPath string) string {
	if strings.EqualFold(filepath.Ext(layoutPath), s.layoutExt) {
		return changeExt(layoutPath, s.structureExt)
	}
	return layoutPath
}

// IsDocument reports whether path has the structure or layout extension
func (s *FileStore) IsDocument(path string) bool {
	ext := filepath.Ext(path)
	return strings.EqualFold(ext, s.structureExt) || strings.EqualFold(ext, s.layoutExt)
}

// Save writes the structure document to path and the layout overlay next to
// it and returns the structure path. Each file is written to a temporary file
// first and renamed into place. The graph itself is not modified.
func (s *FileStore) Save(g *domain.Graph, path string) (string, error) {
	path = s.StructurePathFor(path)
	snapshot := g.Snapshot()

	var structure, layout bytes.Buffer
	if err := s.codec.EncodeStructure(snapshot, &structure); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	if err := s.codec.EncodeLayout(snapshot, &layout); err != nil {
		return "", fmt.Errorf("save %s: %w", s.LayoutPathFor(path), err)
	}

	if err := writeFileAtomic(path, structure.Bytes()); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	layoutPath := s.LayoutPathFor(path)
	if err := writeFileAtomic(layoutPath, layout.Bytes()); err != nil {
		return "", fmt.Errorf("save %s: %w", layoutPath, err)
	}

	s.logger.Info("graph saved",
		zap.String("path", path),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()),
	)
	return path, nil
}

// Load reads the structure document and, if present, its layout overlay.
// A layout path is accepted and mapped to its structure document.
func (s *FileStore) Load(path string) (*domain.Graph, error) {
	path = s.StructurePathFor(path)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, ErrFileNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	structure, err := s.codec.DecodeStructure(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var layout *codec.Document
	layoutPath := s.LayoutPathFor(path)
	lf, err := os.Open(layoutPath)
	switch {
	case err == nil:
		defer lf.Close()
		if layout, err = s.codec.DecodeLayout(lf); err != nil {
			return nil, fmt.Errorf("load %s: %w", layoutPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Debug("no layout overlay", zap.String("path", layoutPath))
	default:
		return nil, fmt.Errorf("load %s: %w", layoutPath, err)
	}

	g, err := s.codec.Build(structure, layout)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	g.FilePath = path
	s.logger.Info("graph loaded",
		zap.String("path", path),
		zap.Bool("layout", layout != nil),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()),
	)
	return g, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func changeExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func normalizeExt(ext string) string {
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// Package codec converts graphs to and from document formats: DGML for the
// editor's native files, YAML and JSON for full-fidelity snapshots.
package codec

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"digraph/internal/domain"
)

// ErrUnknownFormat is returned by Lookup for formats without a codec
var ErrUnknownFormat = errors.New("codec: unknown format")

// Importer interface for importing graph data from various formats
type Importer interface {
	Parse(r io.Reader) (*domain.Snapshot, error)
	Format() string
}

// Exporter interface for exporting graph data to various formats
type Exporter interface {
	Export(snapshot *domain.Snapshot, w io.Writer) error
	Format() string
}

// Codec is both an Importer and an Exporter
type Codec interface {
	Importer
	Exporter
}

var (
	_ Codec = (*DGMLCodec)(nil)
	_ Codec = (*YAMLCodec)(nil)
	_ Codec = (*JSONCodec)(nil)
)

// Lookup returns the codec for a format name such as "dgml", "yaml" or "json"
func Lookup(format string, opts ...domain.GraphOption) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "dgml":
		return NewDGMLCodec(opts...), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
}

// FormatFromPath guesses the format from a file extension
func FormatFromPath(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Formats lists the supported format names
func Formats() []string {
	f := []string{"dgml", "yaml", "json"}
	sort.Strings(f)
	return f
}

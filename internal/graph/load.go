package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Format names a graph file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath picks a Format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads a graph file. The encoding is chosen by extension (.json, .toml).
func Load(path string) (*Graph, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	g, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return g, nil
}

// Decode parses data in the given format and builds the graph.
func Decode(data []byte, format Format) (*Graph, error) {
	var spec Spec
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("failed to decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return FromSpec(spec)
}

// Encode writes g to w in the given format.
func Encode(w io.Writer, g *Graph, format Format) error {
	spec := g.Spec()
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(spec)
	case FormatTOML:
		return toml.NewEncoder(w).Encode(spec)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Package loader reads configuration sources into generic maps.
//
// File loaders parse TOML or YAML documents; the environment loader maps
// prefixed variables onto configuration paths. Maps from several sources
// are combined with DeepMerge.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader is the interface for configuration sources.
type Loader interface {
	// Load reads the source and returns a map.
	// Returns nil, nil if the source doesn't exist (not an error).
	Load() (map[string]any, error)
}

// FileSystem abstracts file reads so tests can use in-memory files.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// parser decodes a document into a map.
type parser func(data []byte, v any) error

// FileLoader loads a configuration file with a format-specific parser.
type FileLoader struct {
	fs     FileSystem
	path   string
	format string
	parse  parser
}

// ForPath returns a loader for path chosen by its extension:
// .toml for TOML, .yaml or .yml for YAML.
func ForPath(path string) (*FileLoader, error) {
	return ForPathWithFS(OSFS{}, path)
}

// ForPathWithFS is like ForPath but reads through fs.
func ForPathWithFS(fs FileSystem, path string) (*FileLoader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return NewTOMLLoaderWithFS(fs, path), nil
	case ".yaml", ".yml":
		return NewYAMLLoaderWithFS(fs, path), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q for %s", ext, path)
	}
}

// Path returns the file path.
func (l *FileLoader) Path() string {
	return l.path
}

// Format returns "toml" or "yaml".
func (l *FileLoader) Format() string {
	return l.format
}

// Load reads and parses the file.
func (l *FileLoader) Load() (map[string]any, error) {
	data, err := l.fs.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // File doesn't exist, not an error
		}
		return nil, fmt.Errorf("reading config file %s: %w", l.path, err)
	}
	return l.Parse(l.path, data)
}

// Parse decodes data read from source.
func (l *FileLoader) Parse(source string, data []byte) (map[string]any, error) {
	var config map[string]any
	if err := l.parse(data, &config); err != nil {
		return nil, &ParseError{Path: source, Format: l.format, Err: err}
	}
	return config, nil
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}

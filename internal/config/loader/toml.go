package loader

import "github.com/pelletier/go-toml/v2"

// NewTOMLLoader creates a loader for a TOML file.
func NewTOMLLoader(path string) *FileLoader {
	return NewTOMLLoaderWithFS(OSFS{}, path)
}

// NewTOMLLoaderWithFS creates a TOML loader reading through fs.
func NewTOMLLoaderWithFS(fs FileSystem, path string) *FileLoader {
	return &FileLoader{fs: fs, path: path, format: "toml", parse: toml.Unmarshal}
}

package loader

import "gopkg.in/yaml.v3"

// NewYAMLLoader creates a loader for a YAML file.
func NewYAMLLoader(path string) *FileLoader {
	return NewYAMLLoaderWithFS(OSFS{}, path)
}

// NewYAMLLoaderWithFS creates a YAML loader reading through fs.
func NewYAMLLoaderWithFS(fs FileSystem, path string) *FileLoader {
	return &FileLoader{fs: fs, path: path, format: "yaml", parse: yaml.Unmarshal}
}

package staticfiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const manifestVersion = "1.1"

// Manifest maps logical static names to their hashed names.
type Manifest struct {
	prefix string
	paths  map[string]string
}

type manifestFile struct {
	Paths   map[string]string `json:"paths"`
	Version string            `json:"version"`
}

// LoadManifest reads staticfiles.json from root. A missing file yields an
// empty manifest whose URLs fall back to the logical names.
func LoadManifest(root, prefix string) (*Manifest, error) {
	m := &Manifest{prefix: prefix, paths: map[string]string{}}
	data, err := os.ReadFile(filepath.Join(root, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var file manifestFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if file.Paths != nil {
		m.paths = file.Paths
	}
	return m, nil
}

// URL returns the public URL for name, using its hashed form when known.
func (m *Manifest) URL(name string) string {
	name = strings.TrimPrefix(name, "/")
	if hashed, ok := m.paths[name]; ok {
		name = hashed
	}
	return m.prefix + name
}

// Len reports how many names the manifest maps.
func (m *Manifest) Len() int {
	return len(m.paths)
}

func (m *Manifest) write(dst string) error {
	data, err := json.MarshalIndent(manifestFile{Paths: m.paths, Version: manifestVersion}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

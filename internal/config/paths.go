package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Every filesystem location below derives from the project base directory.

func templateDirs(baseDir string) []string {
	return []string{
		filepath.Join(baseDir, "templates"),
		filepath.Join(baseDir, "web", "templates"),
	}
}

func staticDirs(baseDir string) []string {
	return []string{
		filepath.Join(baseDir, "static"),
		filepath.Join(baseDir, "web", "static"),
	}
}

func staticRoot(baseDir string) string {
	return filepath.Join(baseDir, "staticfiles")
}

func mediaRoot(baseDir string) string {
	return filepath.Join(baseDir, "media")
}

// ResolveBaseDir returns the nearest directory at or above start that holds
// a go.mod file. When none is found start itself is returned.
func ResolveBaseDir(start string) string {
	dir := filepath.Clean(start)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Clean(start)
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve base directory %q: %w", path, err)
	}
	return abs, nil
}

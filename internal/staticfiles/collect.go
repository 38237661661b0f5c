package staticfiles

import (
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ferme-mv/pahou/internal/config"
)

// ManifestName is the file written at the root of the collected tree.
const ManifestName = "staticfiles.json"

const hashLength = 12

// Extensions that are already compressed are not gzipped again.
var skipCompress = map[string]struct{}{
	".gz": {}, ".br": {}, ".zip": {}, ".png": {}, ".jpg": {}, ".jpeg": {},
	".gif": {}, ".webp": {}, ".avif": {}, ".woff": {}, ".woff2": {},
	".mp4": {}, ".webm": {}, ".mp3": {}, ".pdf": {},
}

// Result summarises a Collect run.
type Result struct {
	Copied   int
	Manifest *Manifest
}

// Collect copies every file found in s.Dirs into s.Root. The first
// directory holding a given name wins. Each file also gets a hashed copy
// and, when compressible, gzip siblings for both names; the mapping is
// written to staticfiles.json.
func Collect(s config.StaticSettings) (Result, error) {
	if s.Root == "" {
		return Result{}, errors.New("static root is not configured")
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return Result{}, fmt.Errorf("create static root: %w", err)
	}

	sources, err := findSources(s.Dirs)
	if err != nil {
		return Result{}, err
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make(map[string]string, len(names))
	for _, name := range names {
		hashed, err := collectFile(s.Root, name, sources[name])
		if err != nil {
			return Result{}, fmt.Errorf("collect %s: %w", name, err)
		}
		paths[name] = hashed
	}

	m := &Manifest{prefix: s.URL, paths: paths}
	if err := m.write(filepath.Join(s.Root, ManifestName)); err != nil {
		return Result{}, err
	}
	return Result{Copied: len(names), Manifest: m}, nil
}

// findSources maps slash-separated logical names to source file paths.
func findSources(dirs []string) (map[string]string, error) {
	sources := make(map[string]string)
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("static dir %s is not a directory", dir)
		}
		err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if _, seen := sources[name]; !seen {
				sources[name] = p
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	return sources, nil
}

func collectFile(root, name, src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	hashed := hashedName(name, hex.EncodeToString(sum[:])[:hashLength])

	for _, target := range []string{name, hashed} {
		dst := filepath.Join(root, filepath.FromSlash(target))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return "", err
		}
		if compressible(target) {
			if err := writeGzip(dst+".gz", data); err != nil {
				return "", err
			}
		}
	}
	return hashed, nil
}

// hashedName inserts hash before the extension: css/app.css -> css/app.<hash>.css.
func hashedName(name, hash string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "." + hash + ext
}

func compressible(name string) bool {
	_, skip := skipCompress[strings.ToLower(path.Ext(name))]
	return !skip
}

func writeGzip(dst string, data []byte) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		_ = f.Close()
		return err
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		_ = f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

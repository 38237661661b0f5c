package staticfiles

import (
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ferme-mv/pahou/internal/config"
)

const (
	immutableCacheControl = "max-age=315360000, public, immutable"
	defaultCacheControl   = "max-age=60, public"
	debugCacheControl     = "max-age=0, public"
)

var hashedFile = regexp.MustCompile(`\.[0-9a-f]{12}(\.[^./]+)?$`)

type fileServer struct {
	prefix string
	dirs   []string
	debug  bool
	// cache is false for media, which never gets cache headers.
	cache bool
}

// Handler serves s.URL from s.Root and, in debug mode, from s.Dirs as well.
func Handler(s config.StaticSettings, debug bool) http.Handler {
	dirs := []string{s.Root}
	if debug {
		dirs = append(dirs, s.Dirs...)
	}
	return &fileServer{prefix: s.URL, dirs: dirs, debug: debug, cache: true}
}

// MediaHandler serves uploaded files from m.Root.
func MediaHandler(m config.MediaSettings) http.Handler {
	return &fileServer{prefix: m.URL, dirs: []string{m.Root}}
}

// Middleware short-circuits requests under the static URL, and under the
// media URL in debug mode, before they reach next.
func Middleware(s config.StaticSettings, m config.MediaSettings, debug bool) func(http.Handler) http.Handler {
	static := Handler(s, debug)
	var media http.Handler
	if debug && m.URL != "" {
		media = MediaHandler(m)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case s.URL != "" && strings.HasPrefix(r.URL.Path, s.URL):
				static.ServeHTTP(w, r)
			case media != nil && strings.HasPrefix(r.URL.Path, m.URL):
				media.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (f *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name, ok := f.cleanName(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	for _, dir := range f.dirs {
		if dir == "" {
			continue
		}
		full := filepath.Join(dir, filepath.FromSlash(name))
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		f.serve(w, r, name, full)
		return
	}
	http.NotFound(w, r)
}

// cleanName strips the prefix and rejects traversal and hidden segments.
func (f *fileServer) cleanName(urlPath string) (string, bool) {
	rest, ok := strings.CutPrefix(urlPath, f.prefix)
	if !ok || rest == "" {
		return "", false
	}
	for _, seg := range strings.Split(rest, "/") {
		if seg == ".." || strings.HasPrefix(seg, ".") || strings.Contains(seg, "\\") {
			return "", false
		}
	}
	name := path.Clean("/" + rest)[1:]
	if name == "" {
		return "", false
	}
	return name, true
}

func (f *fileServer) serve(w http.ResponseWriter, r *http.Request, name, full string) {
	h := w.Header()
	if f.cache {
		h.Set("Cache-Control", f.cacheControl(name))
	}
	if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
		h.Set("Content-Type", ctype)
	}

	target := full
	if compressible(name) {
		h.Add("Vary", "Accept-Encoding")
		if acceptsGzip(r) {
			if info, err := os.Stat(full + ".gz"); err == nil && !info.IsDir() {
				target = full + ".gz"
				h.Set("Content-Encoding", "gzip")
			}
		}
	}

	file, err := os.Open(target)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (f *fileServer) cacheControl(name string) string {
	switch {
	case hashedFile.MatchString(path.Base(name)):
		return immutableCacheControl
	case f.debug:
		return debugCacheControl
	default:
		return defaultCacheControl
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		q, found := strings.CutPrefix(strings.TrimSpace(params), "q=")
		if !found {
			return true
		}
		weight, err := strconv.ParseFloat(q, 64)
		return err == nil && weight > 0
	}
	return false
}

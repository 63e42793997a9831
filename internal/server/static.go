package server

import (
	"bytes"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// staticHandler serves files below root. A path without a file behind it
// falls back to the same path plus ".html", and directories serve their
// index.html. HTML responses carry the live-reload script.
type staticHandler struct {
	root   string
	inject bool
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, ok := h.resolve(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if strings.EqualFold(filepath.Ext(file), ".html") {
		h.serveHTML(w, r, file)
		return
	}
	http.ServeFile(w, r, file)
}

// resolve maps a URL path to a regular file below root.
func (h *staticHandler) resolve(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	candidate := filepath.Join(h.root, filepath.FromSlash(clean))

	if info, err := os.Stat(candidate); err == nil {
		if info.Mode().IsRegular() {
			return candidate, true
		}
		if info.IsDir() {
			index := filepath.Join(candidate, "index.html")
			if isFile(index) {
				return index, true
			}
		}
	}

	if clean != "/" && path.Ext(clean) == "" {
		withExt := candidate + ".html"
		if isFile(withExt) {
			return withExt, true
		}
	}
	return "", false
}

func (h *staticHandler) serveHTML(w http.ResponseWriter, r *http.Request, file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	if h.inject {
		data = InjectScript(data, scriptTag)
	}

	var modTime time.Time
	if info, err := os.Stat(file); err == nil {
		modTime = info.ModTime()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(file), modTime, bytes.NewReader(data))
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

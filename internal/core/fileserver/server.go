package fileserver

import (
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/core/storage"
)

// Server serves finished artifacts straight from the artifacts root.
// URL pattern: {prefix}/{relative path}
type Server struct {
	root   *storage.Root
	prefix string
}

func NewServer(root *storage.Root, prefix string) *Server {
	return &Server{root: root, prefix: "/" + strings.Trim(prefix, "/")}
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	h := echo.WrapHandler(s)
	e.GET(s.prefix+"/*", h)
	e.HEAD(s.prefix+"/*", h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, s.prefix)
	// Reject before cleaning so "/media/../x" cannot collapse into the root.
	if containsDotDot(rel) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	rel = path.Clean("/" + rel)

	f, meta, err := s.root.Open(r.Context(), rel)
	switch {
	case errors.Is(err, storage.ErrOutsideRoot):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case err != nil:
		log.Debug().Err(err).Str("path", rel).Msg("artifact not found")
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")

	// ServeContent handles Range requests automatically
	http.ServeContent(w, r, filepath.Base(rel), meta.ModTime, f)
}

func containsDotDot(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

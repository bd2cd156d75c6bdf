package fileserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viperadnan-git/tubestash/internal/core/storage"
)

func setup(t *testing.T) (*Server, *echo.Echo, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := storage.NewRoot(filepath.Join(dir, "videos"))
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root.Base(), "channels", "c"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root.Base(), "channels", "c", "v1.mp4"), []byte("0123456789"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root.Base(), "notes.bin"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret"), []byte("s"), 0o644))

	srv := NewServer(root, "/media")
	e := echo.New()
	srv.RegisterRoutes(e)
	return srv, e, dir
}

func TestServeFullFile(t *testing.T) {
	_, e, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/media/channels/c/v1.mp4", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "0123456789", rec.Body.String())
}

func TestServeRange(t *testing.T) {
	_, e, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/media/channels/c/v1.mp4", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, "2345", rec.Body.String())
}

func TestUnknownExtensionIsOpaque(t *testing.T) {
	_, e, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/media/notes.bin", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}

func TestTraversalForbidden(t *testing.T) {
	srv, _, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/media/x", nil)
	req.URL.Path = "/media/../secret"
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMissingAndDirectory(t *testing.T) {
	_, e, _ := setup(t)

	for _, p := range []string{"/media/channels/c/none.mp4", "/media/channels"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}
}

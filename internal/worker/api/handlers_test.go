package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

type fakeEngine struct {
	mu        sync.Mutex
	submitted map[string]string
	cancelled []string
	acked     []string
	snapshot  map[string]job.State
	submitErr error
}

func (f *fakeEngine) Submit(id, authContext string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted[id] = authContext
	return nil
}

func (f *fakeEngine) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return true
}

func (f *fakeEngine) Ack(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return true
}

func (f *fakeEngine) Snapshot() map[string]job.State { return f.snapshot }

type fakeStorage struct {
	deleted []string
	failOn  string
	usage   int64
}

func (f *fakeStorage) Delete(_ context.Context, rel string) error {
	if rel == f.failOn {
		return errors.New("boom")
	}
	f.deleted = append(f.deleted, rel)
	return nil
}

func (f *fakeStorage) Usage(context.Context) (int64, error) { return f.usage, nil }

func TestMain(m *testing.M) {
	InitErrors()
	os.Exit(m.Run())
}

func newTestAPI(t *testing.T) (humatest.TestAPI, *fakeEngine, *fakeStorage) {
	t.Helper()
	eng := &fakeEngine{submitted: map[string]string{}, snapshot: map[string]job.State{}}
	st := &fakeStorage{usage: 2048}
	_, api := humatest.New(t)
	Register(api, NewHandler(eng, st, 777))
	return api, eng, st
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestPing(t *testing.T) {
	api, _, _ := newTestAPI(t)

	resp := api.Get("/api/ping")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp.Body.Bytes())
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(777), body["pid"])
}

func TestSubmit(t *testing.T) {
	api, eng, _ := newTestAPI(t)

	resp := api.Post("/api/download", map[string]any{"id": "dQw4w9WgXcQ", "authContext": "cookie"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, true, decode(t, resp.Body.Bytes())["ok"])
	assert.Equal(t, "cookie", eng.submitted["dQw4w9WgXcQ"])

	resp = api.Post("/api/download", map[string]any{"id": "no-cookies"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, eng.submitted, "no-cookies")
}

func TestSubmitRejectsInvalidID(t *testing.T) {
	api, eng, _ := newTestAPI(t)

	for _, id := range []string{"", "../etc", "has space", "a/b"} {
		resp := api.Post("/api/download", map[string]any{"id": id})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, id)
		body := decode(t, resp.Body.Bytes())
		assert.Equal(t, false, body["ok"])
		assert.NotEmpty(t, body["error"])
	}
	assert.Empty(t, eng.submitted)
}

func TestSubmitEngineError(t *testing.T) {
	api, eng, _ := newTestAPI(t)
	eng.submitErr = errors.New("nope")

	resp := api.Post("/api/download", map[string]any{"id": "abc"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "nope", decode(t, resp.Body.Bytes())["error"])
}

func TestDownloadsSnapshot(t *testing.T) {
	api, eng, _ := newTestAPI(t)
	eng.snapshot["a"] = job.State{ID: "a", Status: job.StatusDownloading, Percent: 42.5}

	resp := api.Get("/api/downloads")
	require.Equal(t, http.StatusOK, resp.Code)

	var got map[string]job.State
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, job.StatusDownloading, got["a"].Status)
	assert.InDelta(t, 42.5, got["a"].Percent, 0.001)
}

func TestCancelAndAckAlwaysOK(t *testing.T) {
	api, eng, _ := newTestAPI(t)

	resp := api.Post("/api/cancel", map[string]any{"id": "x1"})
	require.Equal(t, http.StatusOK, resp.Code)
	resp = api.Post("/api/ack", map[string]any{"id": "x1"})
	require.Equal(t, http.StatusOK, resp.Code)
	resp = api.Post("/api/ack", map[string]any{"id": "x1"})
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, []string{"x1"}, eng.cancelled)
	assert.Equal(t, []string{"x1", "x1"}, eng.acked)
}

func TestDeleteFilesIsBestEffort(t *testing.T) {
	api, _, st := newTestAPI(t)
	st.failOn = "channels/c/a.mp4"

	resp := api.Post("/api/delete-files", map[string]any{
		"filePath":      "channels/c/a.mp4",
		"thumbnailPath": "thumbnails/a.jpg",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"thumbnails/a.jpg"}, st.deleted)

	resp = api.Post("/api/delete-files", map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestDiskUsage(t *testing.T) {
	api, _, _ := newTestAPI(t)

	resp := api.Get("/api/disk-usage")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(2048), decode(t, resp.Body.Bytes())["totalBytes"])
}

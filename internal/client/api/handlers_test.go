package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viperadnan-git/tubestash/internal/client/monitor"
	"github.com/viperadnan-git/tubestash/internal/client/queue"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

type fakeQueue struct {
	enqueued []queue.Item
	queued   bool
	cancel   map[string]bool
	ceiling  int
}

func (f *fakeQueue) Enqueue(_ context.Context, it queue.Item) (bool, error) {
	f.enqueued = append(f.enqueued, it)
	return f.queued, nil
}

func (f *fakeQueue) Cancel(_ context.Context, id string) (bool, error) {
	return f.cancel[id], nil
}

func (f *fakeQueue) SetCeiling(_ context.Context, n int) { f.ceiling = n }

func (f *fakeQueue) Snapshot() queue.Status {
	return queue.Status{Ceiling: 2, Active: []string{"a"}, Backlog: []string{"b"}}
}

type fakeRecords struct {
	items    map[string]records.Item
	settings records.Settings
	lastPoll *records.PollResult
}

func (f *fakeRecords) Get(_ context.Context, id string) (records.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return records.Item{}, records.ErrNotFound
	}
	return it, nil
}

func (f *fakeRecords) List(_ context.Context) ([]records.Item, error) {
	var out []records.Item
	for _, id := range []string{"a", "b", "c"} {
		if it, ok := f.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeRecords) ListByStatus(_ context.Context, status job.Status) ([]records.Item, error) {
	var out []records.Item
	for _, id := range []string{"a", "b", "c"} {
		if it, ok := f.items[id]; ok && it.Status == status {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeRecords) Settings(_ context.Context) (records.Settings, error) { return f.settings, nil }

func (f *fakeRecords) SaveSettings(_ context.Context, st records.Settings) (records.Settings, error) {
	f.settings = st.Normalize(records.DefaultSettings())
	return f.settings, nil
}

func (f *fakeRecords) LastPoll(_ context.Context) (*records.PollResult, error) {
	return f.lastPoll, nil
}

type fakeLibrary struct {
	recs    *fakeRecords
	deleted []string
	resets  int
}

func (f *fakeLibrary) MarkWatched(ctx context.Context, id string, watched bool) (records.Item, error) {
	it, err := f.recs.Get(ctx, id)
	if err != nil {
		return records.Item{}, err
	}
	it.Watched = watched
	f.recs.items[id] = it
	return it, nil
}

func (f *fakeLibrary) Delete(ctx context.Context, id string) error {
	if _, err := f.recs.Get(ctx, id); err != nil {
		return err
	}
	delete(f.recs.items, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeLibrary) ClearAndRedownload(_ context.Context) (records.PollResult, error) {
	f.resets++
	return records.PollResult{Found: 4}, nil
}

func (f *fakeLibrary) Counts(_ context.Context) (records.Counts, error) {
	return records.Counts{Total: len(f.recs.items)}, nil
}

type fakeSyncer struct {
	err error
}

func (f *fakeSyncer) Sync(_ context.Context) (records.PollResult, error) {
	if f.err != nil {
		return records.PollResult{Error: f.err.Error()}, f.err
	}
	return records.PollResult{Found: 2}, nil
}

type fakeMonitor struct {
	connected bool
	retries   int
}

func (f *fakeMonitor) Status() monitor.Status {
	return monitor.Status{Connected: f.connected, WorkerURL: "http://worker"}
}

func (f *fakeMonitor) Retry(_ context.Context) bool {
	f.retries++
	f.connected = true
	return true
}

type fakeProgress map[string]job.State

func (f fakeProgress) Progress() map[string]job.State { return f }

type fakeDisk struct {
	total int64
	err   error
}

func (f fakeDisk) DiskUsage(_ context.Context) (int64, error) { return f.total, f.err }

type env struct {
	srv   http.Handler
	queue *fakeQueue
	recs  *fakeRecords
	lib   *fakeLibrary
	sync  *fakeSyncer
	mon   *fakeMonitor
	disk  *fakeDisk
}

func newEnv() *env {
	recs := &fakeRecords{
		items: map[string]records.Item{
			"a": {ID: "a", Title: "A", Status: job.StatusDone},
			"b": {ID: "b", Title: "B", Status: job.StatusQueued},
		},
		settings: records.DefaultSettings(),
	}
	e := &env{
		queue: &fakeQueue{cancel: map[string]bool{"b": true}},
		recs:  recs,
		lib:   &fakeLibrary{recs: recs},
		sync:  &fakeSyncer{},
		mon:   &fakeMonitor{},
		disk:  &fakeDisk{total: 2048},
	}
	e.srv = NewRouter(NewHandler(Deps{
		Queue:    e.queue,
		Records:  e.recs,
		Library:  e.lib,
		Syncer:   e.sync,
		Monitor:  e.mon,
		Progress: fakeProgress{"a": {ID: "a", Status: job.StatusDownloading, Percent: 50}},
		Disk:     e.disk,
	}))
	return e
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *env) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestHealth(t *testing.T) {
	code, out := newEnv().do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, out.Success)
	assert.JSONEq(t, `{"status":"ok"}`, string(out.Data))
}

func TestStatus(t *testing.T) {
	e := newEnv()
	e.recs.lastPoll = &records.PollResult{At: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Found: 3}

	code, out := e.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)

	var st StatusDTO
	require.NoError(t, json.Unmarshal(out.Data, &st))
	assert.False(t, st.Connection.Connected)
	assert.Equal(t, []string{"a"}, st.Queue.Active)
	assert.Equal(t, []string{"b"}, st.Queue.Backlog)
	assert.InDelta(t, 50, st.Progress["a"].Percent, 0.001)
	assert.Equal(t, 2, st.Counts.Total)
	require.NotNil(t, st.LastPoll)
	assert.Equal(t, 3, st.LastPoll.Found)
	assert.Equal(t, records.DefaultSettings(), st.Settings)
}

func TestListVideos(t *testing.T) {
	e := newEnv()

	code, out := e.do(t, http.MethodGet, "/api/videos", "")
	require.Equal(t, http.StatusOK, code)
	var items []records.Item
	require.NoError(t, json.Unmarshal(out.Data, &items))
	assert.Len(t, items, 2)

	code, out = e.do(t, http.MethodGet, "/api/videos?status=queued", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(out.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)

	code, out = e.do(t, http.MethodGet, "/api/videos?status=error", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(out.Data))

	code, out = e.do(t, http.MethodGet, "/api/videos?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, out.Success)
	assert.Equal(t, "INVALID_INPUT", out.Error.Code)
}

func TestGetVideo(t *testing.T) {
	e := newEnv()

	code, out := e.do(t, http.MethodGet, "/api/videos/a", "")
	require.Equal(t, http.StatusOK, code)
	var it records.Item
	require.NoError(t, json.Unmarshal(out.Data, &it))
	assert.Equal(t, "A", it.Title)

	code, out = e.do(t, http.MethodGet, "/api/videos/zzz", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", out.Error.Code)
}

func TestEnqueue(t *testing.T) {
	e := newEnv()
	e.queue.queued = true

	code, out := e.do(t, http.MethodPost, "/api/videos",
		`{"id":"dQw4w9WgXcQ","title":"T","channel_id":"UC1","published_at":"2024-03-01T10:00:00Z"}`)
	assert.Equal(t, http.StatusAccepted, code)
	assert.JSONEq(t, `{"id":"dQw4w9WgXcQ","queued":true}`, string(out.Data))
	require.Len(t, e.queue.enqueued, 1)
	assert.Equal(t, "UC1", e.queue.enqueued[0].ChannelID)
	assert.Equal(t, 2024, e.queue.enqueued[0].PublishedAt.Year())

	e.queue.queued = false
	code, out = e.do(t, http.MethodPost, "/api/videos", `{"id":"dQw4w9WgXcQ"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"dQw4w9WgXcQ","queued":false}`, string(out.Data))
}

func TestEnqueueRejectsBadID(t *testing.T) {
	e := newEnv()
	for _, body := range []string{`{"id":""}`, `{"id":"../etc"}`, `not json`} {
		code, out := e.do(t, http.MethodPost, "/api/videos", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.False(t, out.Success)
	}
	assert.Empty(t, e.queue.enqueued)
}

func TestCancel(t *testing.T) {
	e := newEnv()

	code, out := e.do(t, http.MethodPost, "/api/videos/b/cancel", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"b","cancelled":true}`, string(out.Data))

	_, out = e.do(t, http.MethodPost, "/api/videos/a/cancel", "")
	assert.JSONEq(t, `{"id":"a","cancelled":false}`, string(out.Data))
}

func TestMarkWatched(t *testing.T) {
	e := newEnv()

	code, _ := e.do(t, http.MethodPost, "/api/videos/a/watched", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, e.recs.items["a"].Watched)

	code, _ = e.do(t, http.MethodPost, "/api/videos/a/watched", `{"watched":false}`)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, e.recs.items["a"].Watched)

	code, _ = e.do(t, http.MethodPost, "/api/videos/zzz/watched", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeleteVideo(t *testing.T) {
	e := newEnv()

	code, _ := e.do(t, http.MethodDelete, "/api/videos/a", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"a"}, e.lib.deleted)

	code, out := e.do(t, http.MethodDelete, "/api/videos/a", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", out.Error.Code)
}

func TestSync(t *testing.T) {
	e := newEnv()

	code, out := e.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusOK, code)
	var res records.PollResult
	require.NoError(t, json.Unmarshal(out.Data, &res))
	assert.Equal(t, 2, res.Found)

	e.sync.err = errors.New("parse inbox: bad yaml")
	code, out = e.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, out.Error.Message, "bad yaml")
}

func TestRetryConnection(t *testing.T) {
	e := newEnv()

	code, out := e.do(t, http.MethodPost, "/api/retry-connection", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, e.mon.retries)

	var st monitor.Status
	require.NoError(t, json.Unmarshal(out.Data, &st))
	assert.True(t, st.Connected)
}

func TestSettings(t *testing.T) {
	e := newEnv()

	code, out := e.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"concurrency":2,"poll_interval_minutes":30,"max_age_days":14}`, string(out.Data))

	code, out = e.do(t, http.MethodPut, "/api/settings", `{"concurrency":9,"poll_interval_minutes":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"concurrency":4,"poll_interval_minutes":5,"max_age_days":14}`, string(out.Data))
	assert.Equal(t, 4, e.queue.ceiling, "concurrency applies to the queue immediately")

	code, _ = e.do(t, http.MethodPut, "/api/settings", `{"concurrency":"many"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReset(t *testing.T) {
	e := newEnv()

	code, out := e.do(t, http.MethodPost, "/api/reset", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, e.lib.resets)
	assert.JSONEq(t, `{"at":"0001-01-01T00:00:00Z","found":4}`, string(out.Data))
}

func TestDiskUsage(t *testing.T) {
	e := newEnv()

	_, out := e.do(t, http.MethodGet, "/api/disk-usage", "")
	assert.JSONEq(t, `{"total_bytes":2048}`, string(out.Data))

	e.disk.err = errors.New("connection refused")
	code, out := e.do(t, http.MethodGet, "/api/disk-usage", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"total_bytes":0}`, string(out.Data))
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	code, out := newEnv().do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, out.Success)
	assert.Equal(t, "NOT_FOUND", out.Error.Code)
}

package records

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

func openTest(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "db", "test.db"), 0, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC)
}

func TestUpsertCreatesAndMerges(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	it, err := s.Upsert(ctx, "a", Patch{
		Title:       Ptr("First"),
		ChannelName: Ptr("Chan"),
		PublishedAt: Ptr(day(2)),
	})
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, it.Status)

	_, err = s.Upsert(ctx, "a", Patch{Status: Ptr(job.StatusDone), FileSize: Ptr(int64(99))})
	require.NoError(t, err)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title, "unrelated fields survive a status update")
	assert.Equal(t, "Chan", got.ChannelName)
	assert.True(t, got.PublishedAt.Equal(day(2)))
	assert.Equal(t, job.StatusDone, got.Status)
	assert.Equal(t, int64(99), got.FileSize)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	s := openTest(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentUpsertsKeepOneRecord(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Upsert(ctx, "same", Patch{FileSize: Ptr(int64(i))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestListNewestFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for id, d := range map[string]int{"old": 1, "new": 3, "mid": 2} {
		_, err := s.Upsert(ctx, id, Patch{PublishedAt: Ptr(day(d))})
		require.NoError(t, err)
	}

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{items[0].ID, items[1].ID, items[2].ID})

	queued, err := s.ListByStatus(ctx, job.StatusQueued)
	require.NoError(t, err)
	assert.Len(t, queued, 3)
}

func TestListWatchedBefore(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, "old-watched", Patch{Watched: Ptr(true), DownloadedAt: Ptr(day(1))})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "old-unwatched", Patch{DownloadedAt: Ptr(day(1))})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "new-watched", Patch{Watched: Ptr(true), DownloadedAt: Ptr(day(20))})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "never-downloaded", Patch{Watched: Ptr(true)})
	require.NoError(t, err)

	items, err := s.ListWatchedBefore(ctx, day(10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "old-watched", items[0].ID)
}

func TestDeleteAndClear(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := s.Upsert(ctx, id, Patch{})
		require.NoError(t, err)
	}
	require.NoError(t, s.SetLastPoll(ctx, PollResult{At: day(1), Found: 2}))

	require.NoError(t, s.Delete(ctx, "a"))
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Clear(ctx))
	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	p, err := s.LastPoll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, p, "clear keeps kv entries")
}

func TestCountsSeparateCancelled(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	patches := map[string]Patch{
		"q":  {},
		"d":  {Status: Ptr(job.StatusDownloading)},
		"ok": {Status: Ptr(job.StatusDone)},
		"w":  {Status: Ptr(job.StatusDone), Watched: Ptr(true)},
		"e":  {Status: Ptr(job.StatusError), ErrorKind: Ptr(job.KindProcessFailed)},
		"c":  {Status: Ptr(job.StatusError), ErrorKind: Ptr(job.KindCancelled), ErrorMessage: Ptr(job.MsgCancelled)},
	}
	for id, p := range patches {
		_, err := s.Upsert(ctx, id, p)
		require.NoError(t, err)
	}

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{
		Total: 6, Queued: 1, Downloading: 1, Done: 2,
		Failed: 1, Cancelled: 1, Watched: 1, Unwatched: 1,
	}, c)

	it, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, it.Cancelled())
}

func TestSettingsDefaultsAndNormalize(t *testing.T) {
	s := openTest(t, WithDefaultSettings(Settings{Concurrency: 3, PollIntervalMinutes: 15, MaxAgeDays: 7}))
	ctx := context.Background()

	st, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Settings{Concurrency: 3, PollIntervalMinutes: 15, MaxAgeDays: 7}, st)

	saved, err := s.SaveSettings(ctx, Settings{Concurrency: 9, PollIntervalMinutes: 1, MaxAgeDays: 30})
	require.NoError(t, err)
	assert.Equal(t, Settings{Concurrency: job.MaxCeiling, PollIntervalMinutes: MinPollIntervalMinutes, MaxAgeDays: 30}, saved)

	st, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, st)
	assert.Equal(t, 5*time.Minute, st.PollInterval())
}

func TestLastPoll(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	ok, err := s.HasCompletedSync(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetLastPoll(ctx, PollResult{At: day(1), Error: job.MsgNotConnected}))
	ok, err = s.HasCompletedSync(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "an errored sync does not count")

	require.NoError(t, s.SetLastPoll(ctx, PollResult{At: day(2), Found: 4}))
	ok, err = s.HasCompletedSync(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := s.LastPoll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Found)

	require.NoError(t, s.ClearLastPoll(ctx))
	p, err = s.LastPoll(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x", 0)
	assert.Error(t, err)
}

package discovery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/viperadnan-git/tubestash/internal/client/discovery"
	"github.com/viperadnan-git/tubestash/internal/client/discovery/mocks"
	"github.com/viperadnan-git/tubestash/internal/client/queue"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/event"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

type SyncerTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	ctx     context.Context
	source  *mocks.MockSource
	queue   *mocks.MockEnqueuer
	history *mocks.MockHistory
	shorts  *mocks.MockShortDetector
	conn    *mocks.MockConnectivity
}

func (s *SyncerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ctx = context.Background()
	s.source = mocks.NewMockSource(s.ctrl)
	s.queue = mocks.NewMockEnqueuer(s.ctrl)
	s.history = mocks.NewMockHistory(s.ctrl)
	s.shorts = mocks.NewMockShortDetector(s.ctrl)
	s.conn = mocks.NewMockConnectivity(s.ctrl)
}

func (s *SyncerTestSuite) newSyncer(opts ...discovery.Option) *discovery.Syncer {
	opts = append([]discovery.Option{discovery.WithConnectivity(s.conn)}, opts...)
	return discovery.NewSyncer(s.source, s.queue, s.history, opts...)
}

func (s *SyncerTestSuite) TestDisconnectedRecordsError() {
	s.conn.EXPECT().Connected().Return(false)
	s.history.EXPECT().SetLastPoll(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p records.PollResult) error {
			s.Equal(job.MsgNotConnected, p.Error)
			s.Zero(p.Found)
			return nil
		})

	res, err := s.newSyncer().Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(job.MsgNotConnected, res.Error)
}

func (s *SyncerTestSuite) TestFiltersByAgeAndEnqueues() {
	now := time.Now()
	short := true
	entries := []discovery.Entry{
		{ID: "fresh", Title: "Fresh", ChannelID: "UC1", ChannelName: "One", Published: now.Add(-time.Hour)},
		{ID: "stale", Published: now.AddDate(0, 0, -20)},
		{ID: "", Published: now},
		{ID: "undated"},
		{ID: "flagged", Published: now.Add(-2 * time.Hour), Short: &short},
	}

	s.conn.EXPECT().Connected().Return(true)
	s.history.EXPECT().Settings(gomock.Any()).Return(records.Settings{Concurrency: 2, PollIntervalMinutes: 30, MaxAgeDays: 14}, nil)
	s.source.EXPECT().Fetch(gomock.Any()).Return(entries, nil)
	s.shorts.EXPECT().IsShort(gomock.Any(), "fresh").Return(false, nil)

	var got []queue.Item
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, it queue.Item) (bool, error) {
			got = append(got, it)
			return true, nil
		}).Times(2)
	s.history.EXPECT().SetLastPoll(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p records.PollResult) error {
			s.Equal(2, p.Found)
			s.Empty(p.Error)
			return nil
		})

	bus := event.NewBus()
	var synced []event.SyncEvent
	bus.Subscribe(event.EventSyncCompleted, func(_ context.Context, e event.Event) error {
		synced = append(synced, e.Payload.(event.SyncEvent))
		return nil
	})

	res, err := s.newSyncer(discovery.WithShortDetector(s.shorts), discovery.WithBus(bus)).Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, res.Found)

	s.Require().Len(got, 2)
	s.Equal("fresh", got[0].ID)
	s.Equal("One", got[0].ChannelName)
	s.False(got[0].IsShort)
	s.Equal("flagged", got[1].ID)
	s.Equal("flagged", got[1].Title)
	s.True(got[1].IsShort)

	s.Equal([]event.SyncEvent{{Found: 2}}, synced)
}

func (s *SyncerTestSuite) TestDuplicateEntriesStillCountAsFound() {
	now := time.Now()
	s.conn.EXPECT().Connected().Return(true)
	s.history.EXPECT().Settings(gomock.Any()).Return(records.DefaultSettings(), nil)
	s.source.EXPECT().Fetch(gomock.Any()).Return([]discovery.Entry{{ID: "a", Published: now}}, nil)
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(false, nil)
	s.history.EXPECT().SetLastPoll(gomock.Any(), gomock.Any()).Return(nil)

	res, err := s.newSyncer().Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Found)
}

func (s *SyncerTestSuite) TestEnqueueErrorIsSkipped() {
	now := time.Now()
	s.conn.EXPECT().Connected().Return(true)
	s.history.EXPECT().Settings(gomock.Any()).Return(records.DefaultSettings(), nil)
	s.source.EXPECT().Fetch(gomock.Any()).Return([]discovery.Entry{{ID: "a", Published: now}, {ID: "b", Published: now}}, nil)
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(false, errors.New("db locked"))
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(true, nil)
	s.history.EXPECT().SetLastPoll(gomock.Any(), gomock.Any()).Return(nil)

	res, err := s.newSyncer().Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Found)
}

func (s *SyncerTestSuite) TestShortsCheckFailureDefaultsToRegular() {
	s.conn.EXPECT().Connected().Return(true)
	s.history.EXPECT().Settings(gomock.Any()).Return(records.DefaultSettings(), nil)
	s.source.EXPECT().Fetch(gomock.Any()).Return([]discovery.Entry{{ID: "a", Published: time.Now()}}, nil)
	s.shorts.EXPECT().IsShort(gomock.Any(), "a").Return(false, errors.New("dns"))
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, it queue.Item) (bool, error) {
			s.False(it.IsShort)
			return true, nil
		})
	s.history.EXPECT().SetLastPoll(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.newSyncer(discovery.WithShortDetector(s.shorts)).Sync(s.ctx)
	s.Require().NoError(err)
}

func (s *SyncerTestSuite) TestFetchErrorIsRecorded() {
	s.conn.EXPECT().Connected().Return(true)
	s.history.EXPECT().Settings(gomock.Any()).Return(records.DefaultSettings(), nil)
	s.source.EXPECT().Fetch(gomock.Any()).Return(nil, errors.New("parse inbox: bad yaml"))
	s.history.EXPECT().SetLastPoll(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p records.PollResult) error {
			s.Contains(p.Error, "bad yaml")
			return nil
		})

	res, err := s.newSyncer().Sync(s.ctx)
	s.Require().Error(err)
	s.Contains(res.Error, "bad yaml")
}

func (s *SyncerTestSuite) TestRunSyncsOnInterval() {
	s.conn.EXPECT().Connected().Return(false).MinTimes(2)
	calls := make(chan struct{}, 10)
	s.history.EXPECT().SetLastPoll(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, records.PollResult) error {
			calls <- struct{}{}
			return nil
		}).MinTimes(2)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.newSyncer().Run(ctx, func() time.Duration { return 5 * time.Millisecond })
		close(done)
	}()

	<-calls
	<-calls
	cancel()
	<-done
}

func TestSyncerSuite(t *testing.T) {
	suite.Run(t, new(SyncerTestSuite))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`videos:
  - id: abc123
    title: First
    channel_id: UC1
    channel_name: Channel One
    published: 2024-03-01T10:00:00Z
  - id: def456
    published: 2024-03-02T10:00:00Z
    short: true
`), 0o644))

	entries, err := discovery.FileSource{Path: path}.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "abc123", entries[0].ID)
	assert.Equal(t, "Channel One", entries[0].ChannelName)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), entries[0].Published.UTC())
	assert.Nil(t, entries[0].Short)
	require.NotNil(t, entries[1].Short)
	assert.True(t, *entries[1].Short)
}

func TestFileSourceMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()

	entries, err := discovery.FileSource{Path: filepath.Join(dir, "none.yaml")}.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("videos: [\n"), 0o644))
	_, err = discovery.FileSource{Path: bad}.Fetch(context.Background())
	assert.Error(t, err)
}

func TestShortsProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shorts/short1":
			w.WriteHeader(http.StatusOK)
		case "/shorts/video1":
			http.Redirect(w, r, "/watch?v=video1", http.StatusSeeOther)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	probe := discovery.NewShortsProbe(srv.URL+"/", time.Second)

	short, err := probe.IsShort(context.Background(), "short1")
	require.NoError(t, err)
	assert.True(t, short)

	short, err = probe.IsShort(context.Background(), "video1")
	require.NoError(t, err)
	assert.False(t, short)
}

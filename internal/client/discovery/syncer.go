package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/client/queue"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/event"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

// Syncer pulls entries from a Source into the download queue and records
// the outcome as last_poll.
type Syncer struct {
	source  Source
	queue   Enqueuer
	history History
	shorts  ShortDetector
	conn    Connectivity
	bus     event.Bus
	now     func() time.Time

	mu sync.Mutex
}

type Option func(*Syncer)

func WithShortDetector(d ShortDetector) Option { return func(s *Syncer) { s.shorts = d } }
func WithConnectivity(c Connectivity) Option   { return func(s *Syncer) { s.conn = c } }
func WithBus(b event.Bus) Option               { return func(s *Syncer) { s.bus = b } }

func NewSyncer(source Source, q Enqueuer, history History, opts ...Option) *Syncer {
	s := &Syncer{
		source:  source,
		queue:   q,
		history: history,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one pass. The returned PollResult is what was persisted; err is
// set only when the source or the store failed.
func (s *Syncer) Sync(ctx context.Context) (records.PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && !s.conn.Connected() {
		res := records.PollResult{At: s.now().UTC(), Error: job.MsgNotConnected}
		s.finish(ctx, res)
		return res, nil
	}

	settings, err := s.history.Settings(ctx)
	if err != nil {
		return records.PollResult{}, fmt.Errorf("load settings: %w", err)
	}

	entries, err := s.source.Fetch(ctx)
	if err != nil {
		res := records.PollResult{At: s.now().UTC(), Error: err.Error()}
		s.finish(ctx, res)
		return res, fmt.Errorf("fetch entries: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -settings.MaxAgeDays)
	found := 0
	for _, e := range entries {
		if e.ID == "" || e.Published.IsZero() || e.Published.Before(cutoff) {
			continue
		}
		if _, err := s.queue.Enqueue(ctx, s.item(ctx, e)); err != nil {
			log.Error().Err(err).Str("id", e.ID).Msg("enqueue failed")
			continue
		}
		found++
	}

	res := records.PollResult{At: s.now().UTC(), Found: found}
	log.Info().Int("entries", len(entries)).Int("found", found).Int("max_age_days", settings.MaxAgeDays).Msg("sync completed")
	s.finish(ctx, res)
	return res, nil
}

func (s *Syncer) item(ctx context.Context, e Entry) queue.Item {
	it := queue.Item{
		ID:          e.ID,
		Title:       e.Title,
		ChannelID:   e.ChannelID,
		ChannelName: e.ChannelName,
		PublishedAt: e.Published,
	}
	if it.Title == "" {
		it.Title = e.ID
	}

	switch {
	case e.Short != nil:
		it.IsShort = *e.Short
	case s.shorts != nil:
		short, err := s.shorts.IsShort(ctx, e.ID)
		if err != nil {
			log.Warn().Err(err).Str("id", e.ID).Msg("shorts check failed")
		}
		it.IsShort = short
	}
	return it
}

func (s *Syncer) finish(ctx context.Context, res records.PollResult) {
	if err := s.history.SetLastPoll(ctx, res); err != nil {
		log.Error().Err(err).Msg("persist last poll failed")
	}
	if s.bus != nil {
		_ = s.bus.Publish(ctx, event.Event{
			Type:    event.EventSyncCompleted,
			Payload: event.SyncEvent{Found: res.Found, Error: res.Error},
		})
	}
}

// Run syncs every interval() until ctx is done. interval is re-read after
// each pass so settings changes apply without a restart.
func (s *Syncer) Run(ctx context.Context, interval func() time.Duration) {
	timer := time.NewTimer(interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("feed scheduler stopped")
			return
		case <-timer.C:
		}

		syncCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		if _, err := s.Sync(syncCtx); err != nil {
			log.Error().Err(err).Msg("sync failed")
		}
		cancel()
		timer.Reset(interval())
	}
}

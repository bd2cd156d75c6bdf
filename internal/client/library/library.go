// Package library holds the user-facing operations on downloaded records:
// watched flags, deletion, age-based cleanup and the full reset.
package library

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/event"
)

const deleteFilesTimeout = 30 * time.Second

type Library struct {
	records      Records
	files        FileDeleter
	queue        Resetter
	syncer       Syncer
	bus          event.Bus
	cleanupAfter time.Duration
	now          func() time.Time

	wg sync.WaitGroup
}

type Option func(*Library)

func WithBus(b event.Bus) Option { return func(l *Library) { l.bus = b } }

// WithCleanupAfter sets how long watched downloads are kept.
func WithCleanupAfter(days int) Option {
	return func(l *Library) {
		if days > 0 {
			l.cleanupAfter = time.Duration(days) * 24 * time.Hour
		}
	}
}

func New(recs Records, files FileDeleter, q Resetter, syncer Syncer, opts ...Option) *Library {
	l := &Library{
		records:      recs,
		files:        files,
		queue:        q,
		syncer:       syncer,
		cleanupAfter: 30 * 24 * time.Hour,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) MarkWatched(ctx context.Context, id string, watched bool) (records.Item, error) {
	if _, err := l.records.Get(ctx, id); err != nil {
		return records.Item{}, err
	}
	return l.records.Upsert(ctx, id, records.Patch{Watched: records.Ptr(watched)})
}

// Delete removes the record for id right away and asks the worker to remove
// its files in the background.
func (l *Library) Delete(ctx context.Context, id string) error {
	it, err := l.records.Get(ctx, id)
	if err != nil {
		return err
	}
	l.deleteFiles(ctx, it)

	if err := l.records.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("id", id).Msg("video deleted")
	if l.bus != nil {
		_ = l.bus.Publish(ctx, event.Event{Type: event.EventVideoDeleted, Payload: event.VideoEvent{ID: id}})
	}
	return nil
}

func (l *Library) deleteFiles(ctx context.Context, it records.Item) {
	if it.FilePath == "" && it.ThumbnailPath == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	l.wg.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, deleteFilesTimeout)
		defer cancel()
		if err := l.files.DeleteFiles(ctx, it.FilePath, it.ThumbnailPath); err != nil {
			log.Warn().Err(err).Str("id", it.ID).Msg("delete files failed")
		}
	})
}

// CleanupOld deletes watched records downloaded longer ago than the cleanup
// window and returns how many were removed.
func (l *Library) CleanupOld(ctx context.Context) (int, error) {
	cutoff := l.now().Add(-l.cleanupAfter)
	old, err := l.records.ListWatchedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, it := range old {
		if err := l.Delete(ctx, it.ID); err != nil {
			log.Error().Err(err).Str("id", it.ID).Msg("cleanup delete failed")
			continue
		}
		cleaned++
	}
	if cleaned > 0 {
		log.Info().Int("cleaned", cleaned).Time("cutoff", cutoff).Msg("cleaned up old watched videos")
	}
	return cleaned, nil
}

// ClearAndRedownload empties the queue and the library, forgets the sync
// history and syncs again.
func (l *Library) ClearAndRedownload(ctx context.Context) (records.PollResult, error) {
	l.queue.Reset(ctx)

	all, err := l.records.List(ctx)
	if err != nil {
		return records.PollResult{}, err
	}
	for _, it := range all {
		l.deleteFiles(ctx, it)
	}

	if err := l.records.Clear(ctx); err != nil {
		return records.PollResult{}, err
	}
	if err := l.records.ClearLastPoll(ctx); err != nil {
		return records.PollResult{}, err
	}
	log.Info().Int("cleared", len(all)).Msg("library cleared, resyncing")

	return l.syncer.Sync(ctx)
}

func (l *Library) Counts(ctx context.Context) (records.Counts, error) {
	return l.records.Counts(ctx)
}

// Wait blocks until background file deletions have finished.
func (l *Library) Wait() {
	l.wg.Wait()
}

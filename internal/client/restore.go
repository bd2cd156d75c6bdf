package client

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/client/queue"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

type backlogStore interface {
	ListByStatus(ctx context.Context, status job.Status) ([]records.Item, error)
	Upsert(ctx context.Context, id string, p records.Patch) (records.Item, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, it queue.Item) (bool, error)
}

// RestoreBacklog re-enqueues records a previous run left queued or
// downloading. Resubmitting an id the worker is still running is a no-op
// there, so in-flight downloads are adopted instead of restarted.
func RestoreBacklog(ctx context.Context, store backlogStore, q enqueuer) (int, error) {
	downloading, err := store.ListByStatus(ctx, job.StatusDownloading)
	if err != nil {
		return 0, err
	}
	for _, it := range downloading {
		if _, err := store.Upsert(ctx, it.ID, records.Patch{Status: records.Ptr(job.StatusQueued)}); err != nil {
			return 0, err
		}
	}

	queued, err := store.ListByStatus(ctx, job.StatusQueued)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, it := range queued {
		ok, err := q.Enqueue(ctx, queue.Item{
			ID:          it.ID,
			Title:       it.Title,
			ChannelID:   it.ChannelID,
			ChannelName: it.ChannelName,
			PublishedAt: it.PublishedAt,
			IsShort:     it.IsShort,
		})
		if err != nil {
			log.Error().Err(err).Str("id", it.ID).Msg("restore enqueue failed")
			continue
		}
		if ok {
			restored++
		}
	}
	if restored > 0 {
		log.Info().Int("restored", restored).Int("in_flight", len(downloading)).Msg("restored backlog from previous run")
	}
	return restored, nil
}

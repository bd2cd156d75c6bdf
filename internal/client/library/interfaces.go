package library

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/viperadnan-git/tubestash/internal/client/records"
)

type Records interface {
	Get(ctx context.Context, id string) (records.Item, error)
	Upsert(ctx context.Context, id string, p records.Patch) (records.Item, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]records.Item, error)
	ListWatchedBefore(ctx context.Context, cutoff time.Time) ([]records.Item, error)
	Clear(ctx context.Context) error
	ClearLastPoll(ctx context.Context) error
	Counts(ctx context.Context) (records.Counts, error)
}

// FileDeleter removes a record's artifacts on the worker.
type FileDeleter interface {
	DeleteFiles(ctx context.Context, filePath, thumbnailPath string) error
}

type Resetter interface {
	Reset(ctx context.Context)
}

type Syncer interface {
	Sync(ctx context.Context) (records.PollResult, error)
}

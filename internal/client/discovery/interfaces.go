package discovery

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/viperadnan-git/tubestash/internal/client/queue"
	"github.com/viperadnan-git/tubestash/internal/client/records"
)

// Source yields candidate videos for the backlog.
type Source interface {
	Fetch(ctx context.Context) ([]Entry, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, it queue.Item) (bool, error)
}

// History persists sync outcomes and the settings that shape them.
type History interface {
	Settings(ctx context.Context) (records.Settings, error)
	SetLastPoll(ctx context.Context, p records.PollResult) error
}

// ShortDetector decides whether an item is short-form content.
type ShortDetector interface {
	IsShort(ctx context.Context, id string) (bool, error)
}

type Connectivity interface {
	Connected() bool
}

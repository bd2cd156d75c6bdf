package reconcile

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

// Source is the worker's snapshot and acknowledgment endpoints.
type Source interface {
	Downloads(ctx context.Context) (map[string]job.State, error)
	Ack(ctx context.Context, id string) error
}

type Records interface {
	Get(ctx context.Context, id string) (records.Item, error)
	Upsert(ctx context.Context, id string, p records.Patch) (records.Item, error)
}

// Slots is the queue controller's view of in-flight work.
type Slots interface {
	Active() []string
	Release(ctx context.Context, id string)
	Outstanding() bool
}

type Connectivity interface {
	Connected() bool
}

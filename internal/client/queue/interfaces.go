package queue

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/viperadnan-git/tubestash/internal/client/records"
)

// Submitter is the worker's Control API as the queue uses it.
type Submitter interface {
	Submit(ctx context.Context, id, authContext string) error
	Cancel(ctx context.Context, id string) error
}

type Records interface {
	Get(ctx context.Context, id string) (records.Item, error)
	Upsert(ctx context.Context, id string, p records.Patch) (records.Item, error)
}

// AuthProvider exports the browser session passed to yt-dlp as cookies.
type AuthProvider interface {
	AuthContext(ctx context.Context) (string, error)
}

type Connectivity interface {
	Connected() bool
}

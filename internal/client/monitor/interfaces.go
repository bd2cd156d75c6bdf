package monitor

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/viperadnan-git/tubestash/internal/client/remote"
)

type Pinger interface {
	Ping(ctx context.Context) (remote.PingResult, error)
}

// History answers whether a feed sync has ever completed successfully.
type History interface {
	HasCompletedSync(ctx context.Context) (bool, error)
}

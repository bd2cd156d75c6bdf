package event

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AllEvents subscribes a handler to every event type.
const AllEvents EventType = "*"

type Handler func(ctx context.Context, event Event) error

type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())
}

// NewBus creates an in-process event bus. Handlers run synchronously on the
// publishing goroutine, type-specific ones before AllEvents ones. A handler
// error is logged and never stops delivery.
func NewBus() Bus {
	return &syncBus{handlers: make(map[EventType][]subscription)}
}

type subscription struct {
	seq uint64
	fn  Handler
}

type syncBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	seq      uint64
}

func (b *syncBus) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := slices.Concat(b.handlers[e.Type], b.handlers[AllEvents])
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.fn(ctx, e); err != nil {
			log.Error().Err(err).
				Str("event", string(e.Type)).
				Str("event_id", e.ID).
				Msg("event handler failed")
		}
	}
	return nil
}

func (b *syncBus) Subscribe(t EventType, fn Handler) func() {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.handlers[t] = append(b.handlers[t], subscription{seq: seq, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.handlers[t] = slices.DeleteFunc(b.handlers[t], func(s subscription) bool { return s.seq == seq })
		})
	}
}

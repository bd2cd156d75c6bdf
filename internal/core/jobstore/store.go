// Package jobstore holds the worker's in-memory job states.
//
// The store is owned by the execution engine. Callers outside the engine see
// it only through the engine's verbs and read-only snapshots.
package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*job.State
	retention time.Duration
	now       func() time.Time
}

// New creates a store. Terminal entries older than retention are evicted by
// Sweep; a zero retention disables eviction.
func New(retention time.Duration) *Store {
	return &Store{
		jobs:      make(map[string]*job.State),
		retention: retention,
		now:       time.Now,
	}
}

// Apply feeds ev through the job state machine for id.
func (s *Store) Apply(id string, ev job.Event) (job.State, error) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, keep, err := job.Apply(s.jobs[id], id, ev)
	if err != nil {
		return job.State{}, fmt.Errorf("job %s: %w", id, err)
	}
	if !keep {
		delete(s.jobs, id)
		return job.State{}, nil
	}
	s.jobs[id] = &next
	return next, nil
}

// Acknowledge forgets a terminal entry. Unknown or non-terminal ids are left
// alone, so repeated acks are harmless.
func (s *Store) Acknowledge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok || !st.Status.Terminal() {
		return false
	}
	delete(s.jobs, id)
	return true
}

func (s *Store) Get(id string) (job.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[id]
	if !ok {
		return job.State{}, false
	}
	return *st, true
}

// Snapshot returns a copy of every entry.
func (s *Store) Snapshot() map[string]job.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]job.State, len(s.jobs))
	for id, st := range s.jobs {
		out[id] = *st
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Sweep evicts terminal entries that finished more than the retention
// window ago and returns their ids.
func (s *Store) Sweep() []string {
	if s.retention <= 0 {
		return nil
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, st := range s.jobs {
		if !st.Status.Terminal() || st.FinishedAt == nil {
			continue
		}
		age := now.Sub(*st.FinishedAt)
		if age < s.retention {
			continue
		}
		delete(s.jobs, id)
		evicted = append(evicted, id)
		log.Warn().
			Str("id", id).
			Str("status", string(st.Status)).
			Dur("age", age).
			Msg("evicting unacknowledged job past retention window")
	}
	sort.Strings(evicted)
	return evicted
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/core/event"
)

// Status is the last observed state of the worker connection.
type Status struct {
	Connected bool      `json:"connected"`
	WorkerURL string    `json:"worker_url"`
	PID       int       `json:"pid,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at,omitzero"`
}

// Monitor probes the worker and tracks whether it is reachable.
type Monitor struct {
	pinger    Pinger
	history   History
	bus       event.Bus
	workerURL string
	up        time.Duration
	down      time.Duration
	pull      func(ctx context.Context)
	now       func() time.Time

	checkMu sync.Mutex
	rearm   chan struct{}

	mu     sync.RWMutex
	status Status
	pulled bool
}

type Option func(*Monitor)

func WithBus(b event.Bus) Option { return func(m *Monitor) { m.bus = b } }

// WithHistory enables the one-time backlog pull for installs that have
// never completed a sync.
func WithHistory(h History, pull func(ctx context.Context)) Option {
	return func(m *Monitor) {
		m.history = h
		m.pull = pull
	}
}

// WithIntervals overrides the check cadence while connected and disconnected.
func WithIntervals(connected, disconnected time.Duration) Option {
	return func(m *Monitor) {
		if connected > 0 {
			m.up = connected
		}
		if disconnected > 0 {
			m.down = disconnected
		}
	}
}

func New(pinger Pinger, workerURL string, opts ...Option) *Monitor {
	m := &Monitor{
		pinger:    pinger,
		workerURL: workerURL,
		up:        60 * time.Second,
		down:      30 * time.Second,
		now:       time.Now,
		rearm:     make(chan struct{}, 1),
		status:    Status{WorkerURL: workerURL},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Connected
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Interval is the delay before the next scheduled check.
func (m *Monitor) Interval() time.Duration {
	if m.Connected() {
		return m.up
	}
	return m.down
}

// Check pings the worker once, publishes connection transitions and fires
// the backlog pull when needed. It reports whether the worker is reachable.
func (m *Monitor) Check(ctx context.Context) bool {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	res, err := m.pinger.Ping(ctx)
	ok := err == nil && res.OK

	m.mu.Lock()
	was := m.status.Connected
	m.status.Connected = ok
	m.status.CheckedAt = m.now()
	if ok {
		m.status.PID = res.PID
		m.status.LastError = ""
	} else {
		m.status.PID = 0
		if err != nil {
			m.status.LastError = err.Error()
		} else {
			m.status.LastError = "worker reported not ok"
		}
	}
	lastErr := m.status.LastError
	m.mu.Unlock()

	switch {
	case ok && !was:
		log.Info().Str("worker", m.workerURL).Int("pid", res.PID).Msg("worker connected")
		m.publish(ctx, event.EventConnectionRestored, event.ConnectionEvent{WorkerURL: m.workerURL, PID: res.PID})
		m.maybePull(ctx)
	case !ok && was:
		log.Warn().Str("worker", m.workerURL).Str("error", lastErr).Msg("worker connection lost")
		m.publish(ctx, event.EventConnectionLost, event.ConnectionEvent{WorkerURL: m.workerURL, Error: lastErr})
	case !ok:
		log.Debug().Str("worker", m.workerURL).Str("error", lastErr).Msg("worker still unreachable")
	}
	return ok
}

func (m *Monitor) maybePull(ctx context.Context) {
	if m.history == nil || m.pull == nil {
		return
	}

	m.mu.Lock()
	if m.pulled {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	done, err := m.history.HasCompletedSync(ctx)
	if err != nil {
		log.Error().Err(err).Msg("read sync history failed")
		return
	}
	if done {
		return
	}

	m.mu.Lock()
	if m.pulled {
		m.mu.Unlock()
		return
	}
	m.pulled = true
	m.mu.Unlock()

	log.Info().Msg("no completed sync on record, pulling backlog")
	m.pull(ctx)
}

// Retry runs a check now and restarts the schedule from its result.
func (m *Monitor) Retry(ctx context.Context) bool {
	ok := m.Check(ctx)
	select {
	case m.rearm <- struct{}{}:
	default:
	}
	return ok
}

// Run checks immediately and then on a timer re-armed with Interval after
// every check, until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.rearm:
		case <-timer.C:
			m.Check(ctx)
		}
		timer.Reset(m.Interval())
	}
}

func (m *Monitor) publish(ctx context.Context, t event.EventType, payload event.ConnectionEvent) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, event.Event{Type: t, Payload: payload})
}

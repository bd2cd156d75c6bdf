package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/core/job"
	"github.com/viperadnan-git/tubestash/internal/core/jobstore"
	"github.com/viperadnan-git/tubestash/internal/core/process"
)

// Engine runs yt-dlp processes under a concurrency ceiling with a FIFO
// overflow queue. It is the only writer of its job store.
type Engine struct {
	cfg     Config
	store   *jobstore.Store
	spawner process.Spawner
	now     func() time.Time

	mu      sync.Mutex
	active  map[string]*run
	pending []pendingJob
	seq     uint64
}

type pendingJob struct {
	id          string
	authContext string
}

func New(cfg Config, store *jobstore.Store, spawner process.Spawner) *Engine {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = defaultURLTemplate
	}
	if cfg.FormatSort == "" {
		cfg.FormatSort = defaultFormatSort
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	if abs, err := filepath.Abs(cfg.VideosDir); err == nil {
		cfg.VideosDir = abs
	}
	cfg.MaxConcurrent = job.ClampCeiling(cfg.MaxConcurrent)

	return &Engine{
		cfg:     cfg,
		store:   store,
		spawner: spawner,
		now:     time.Now,
		active:  make(map[string]*run),
	}
}

// Init prepares the artifact directories. A missing binary is only logged;
// each submission then fails with a spawn error.
func (e *Engine) Init(_ context.Context) error {
	if _, err := exec.LookPath(e.cfg.Binary); err != nil {
		log.Warn().Err(err).Str("binary", e.cfg.Binary).Msg("yt-dlp binary not found in PATH")
	}
	for _, dir := range []string{
		filepath.Join(e.cfg.VideosDir, channelsDir),
		filepath.Join(e.cfg.VideosDir, thumbnailsDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Version runs `yt-dlp --version`.
func (e *Engine) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.cfg.Binary, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (e *Engine) MaxConcurrent() int { return e.cfg.MaxConcurrent }

// Submit starts id when a slot is free and queues it otherwise. Submitting
// an id that is active, pending, or holds an unacknowledged terminal state
// is a no-op.
func (e *Engine) Submit(id, authContext string) error {
	if id == "" {
		return errors.New("empty id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.active[id]; ok {
		return nil
	}
	for _, p := range e.pending {
		if p.id == id {
			return nil
		}
	}

	if st, ok := e.store.Get(id); ok && st.Status.Terminal() {
		log.Info().Str("id", id).Str("status", string(st.Status)).Msg("submit ignored, terminal state not acknowledged")
		return nil
	}
	e.apply(id, job.Event{Kind: job.EventSubmitted})

	if len(e.active) >= e.cfg.MaxConcurrent {
		e.pending = append(e.pending, pendingJob{id: id, authContext: authContext})
		log.Info().Str("id", id).Int("pending", len(e.pending)).Msg("download queued")
		return nil
	}
	e.startLocked(id, authContext)
	return nil
}

// Cancel kills an active run or drops a pending entry, removing the job
// from the store. The freed slot is refilled before Cancel returns.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.active[id]; ok {
		delete(e.active, id)
		r.handle.Stop()
		e.apply(id, job.Event{Kind: job.EventCancelled})
		log.Info().Str("id", id).Msg("download cancelled")
		e.drainLocked()
		return true
	}
	for i, p := range e.pending {
		if p.id == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			e.apply(id, job.Event{Kind: job.EventCancelled})
			log.Info().Str("id", id).Msg("pending download cancelled")
			return true
		}
	}
	return false
}

// Ack lets the store forget a terminal entry.
func (e *Engine) Ack(id string) bool {
	return e.store.Acknowledge(id)
}

func (e *Engine) Snapshot() map[string]job.State {
	return e.store.Snapshot()
}

// Counts returns the number of running and queued jobs.
func (e *Engine) Counts() (active, pending int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active), len(e.pending)
}

// Shutdown stops every running process and drops the overflow queue.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, r := range e.active {
		r.handle.Stop()
		delete(e.active, id)
	}
	e.pending = nil
}

func (e *Engine) startLocked(id, authContext string) {
	cookieFile, cleanup, err := e.cookiesFor(id, authContext)
	if err != nil {
		e.apply(id, failed(job.Fail(job.KindSpawnFailed, "spawn error: %v", err)))
		return
	}

	h, err := e.spawner.Spawn(e.command(id, cookieFile))
	if err != nil {
		cleanup()
		log.Error().Err(err).Str("id", id).Msg("yt-dlp spawn failed")
		e.apply(id, failed(job.Fail(job.KindSpawnFailed, "spawn error: %v", err)))
		return
	}

	e.seq++
	r := &run{id: id, seq: e.seq, handle: h, cleanup: cleanup}
	e.active[id] = r
	e.apply(id, job.Event{Kind: job.EventStarted})
	log.Info().Str("id", id).Uint64("run", r.seq).Int("active", len(e.active)).Msg("download started")

	go e.supervise(r)
}

func (e *Engine) drainLocked() {
	for len(e.active) < e.cfg.MaxConcurrent && len(e.pending) > 0 {
		next := e.pending[0]
		e.pending = e.pending[1:]
		e.startLocked(next.id, next.authContext)
	}
}

func (e *Engine) progress(r *run, p job.Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[r.id] != r {
		return
	}
	e.apply(r.id, job.Event{Kind: job.EventProgress, Progress: p})
}

// finish applies the terminal event for r unless the run was cancelled or
// superseded in the meantime.
func (e *Engine) finish(r *run, out outcome) {
	if !e.isCurrent(r) {
		log.Debug().Str("id", r.id).Int("code", out.code).Msg("discarding completion of cancelled run")
		return
	}

	ev := e.conclude(r.id, out)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[r.id] != r {
		log.Debug().Str("id", r.id).Msg("discarding completion of cancelled run")
		return
	}
	delete(e.active, r.id)
	st := e.apply(r.id, ev)

	if st.Status == job.StatusDone {
		log.Info().Str("id", r.id).Str("file", st.FilePath).Int64("size", st.FileSize).Msg("download complete")
	} else {
		log.Warn().Str("id", r.id).Str("kind", string(st.ErrorKind)).Str("error", st.Error).Msg("download failed")
	}
	e.drainLocked()
}

func (e *Engine) isCurrent(r *run) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[r.id] == r
}

func (e *Engine) apply(id string, ev job.Event) job.State {
	ev.At = e.now()
	st, err := e.store.Apply(id, ev)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("rejected job transition")
	}
	return st
}

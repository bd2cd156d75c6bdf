package reconcile

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/event"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

// gapPolls is how many consecutive successful snapshots an active id may be
// missing from before it is declared lost.
const gapPolls = 2

// Reconciler polls the worker snapshot while work is outstanding and applies
// terminal outcomes to the record store exactly once.
type Reconciler struct {
	source   Source
	records  Records
	slots    Slots
	conn     Connectivity
	bus      event.Bus
	interval time.Duration
	onDone   func(ctx context.Context, it records.Item)
	now      func() time.Time

	pollMu sync.Mutex

	mu       sync.Mutex
	ctx      context.Context
	running  bool
	applied  map[string]job.Status
	missing  map[string]int
	progress map[string]job.State
}

type Option func(*Reconciler)

func WithConnectivity(c Connectivity) Option { return func(r *Reconciler) { r.conn = c } }
func WithBus(b event.Bus) Option             { return func(r *Reconciler) { r.bus = b } }

// WithOnDone registers fn to run after a download is recorded as done.
func WithOnDone(fn func(ctx context.Context, it records.Item)) Option {
	return func(r *Reconciler) { r.onDone = fn }
}

func New(source Source, recs Records, slots Slots, interval time.Duration, opts ...Option) *Reconciler {
	if interval <= 0 {
		interval = time.Second
	}
	r := &Reconciler{
		source:   source,
		records:  recs,
		slots:    slots,
		interval: interval,
		now:      time.Now,
		ctx:      context.Background(),
		applied:  make(map[string]job.Status),
		missing:  make(map[string]int),
		progress: make(map[string]job.State),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start binds the poll loop to ctx and starts it if work is outstanding.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	if r.slots.Outstanding() {
		r.Ensure()
	}
}

// Ensure starts the poll loop unless it is already running.
func (r *Reconciler) Ensure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.ctx.Err() != nil {
		return
	}
	r.running = true
	go r.loop(r.ctx)
}

func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) loop(ctx context.Context) {
	log.Debug().Dur("interval", r.interval).Msg("download poll loop started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
			return
		case <-ticker.C:
		}

		if err := r.Poll(ctx); err != nil {
			log.Debug().Err(err).Msg("download poll failed")
		}

		r.mu.Lock()
		if !r.slots.Outstanding() {
			r.running = false
			r.mu.Unlock()
			log.Debug().Msg("download poll loop stopped, nothing outstanding")
			return
		}
		r.mu.Unlock()
	}
}

// Poll fetches one snapshot and reconciles it. It is a no-op while the
// worker is disconnected; a failed fetch does not count toward gap
// detection.
func (r *Reconciler) Poll(ctx context.Context) error {
	if r.conn != nil && !r.conn.Connected() {
		return nil
	}

	snap, err := r.source.Downloads(ctx)
	if err != nil {
		return err
	}

	r.pollMu.Lock()
	defer r.pollMu.Unlock()

	for _, id := range slices.Sorted(maps.Keys(snap)) {
		st := snap[id]
		if st.Status.Terminal() {
			r.applyTerminal(ctx, id, st)
			continue
		}

		r.mu.Lock()
		delete(r.applied, id)
		delete(r.missing, id)
		r.progress[id] = st
		r.mu.Unlock()

		r.publish(ctx, event.EventDownloadProgress, event.DownloadEvent{
			ID:         id,
			Status:     string(st.Status),
			Percent:    st.Percent,
			Speed:      st.Speed,
			SpeedBytes: st.SpeedBytes,
			ETA:        st.ETA,
		})
	}

	r.mu.Lock()
	for id := range r.applied {
		if _, ok := snap[id]; !ok {
			delete(r.applied, id)
		}
	}
	for id := range r.progress {
		if _, ok := snap[id]; !ok {
			delete(r.progress, id)
		}
	}
	r.mu.Unlock()

	r.detectGaps(ctx, snap)
	return nil
}

func (r *Reconciler) applyTerminal(ctx context.Context, id string, st job.State) {
	r.mu.Lock()
	prev, seen := r.applied[id]
	r.mu.Unlock()

	if seen && prev == st.Status {
		r.ack(ctx, id)
		return
	}

	rec, err := r.records.Get(ctx, id)
	switch {
	case errors.Is(err, records.ErrNotFound):
		log.Info().Str("id", id).Str("status", string(st.Status)).Msg("terminal report for unknown record, acknowledging")
		r.markApplied(id, st.Status)
		r.ack(ctx, id)
		r.slots.Release(ctx, id)
		return
	case err != nil:
		log.Error().Err(err).Str("id", id).Msg("load record failed, will retry next poll")
		return
	case rec.Cancelled():
		log.Debug().Str("id", id).Str("status", string(st.Status)).Msg("discarding terminal report for cancelled item")
		r.markApplied(id, st.Status)
		r.ack(ctx, id)
		r.slots.Release(ctx, id)
		return
	}

	var (
		patch   records.Patch
		evType  event.EventType
		payload = event.DownloadEvent{ID: id, Status: string(st.Status)}
	)
	if st.Status == job.StatusDone {
		patch = records.Patch{
			Status:        records.Ptr(job.StatusDone),
			FilePath:      records.Ptr(st.FilePath),
			ThumbnailPath: records.Ptr(st.ThumbnailPath),
			FileSize:      records.Ptr(st.FileSize),
			Duration:      records.Ptr(st.Duration),
			Description:   records.Ptr(st.Description),
			DownloadedAt:  records.Ptr(r.now().UTC()),
			ErrorMessage:  records.Ptr(""),
			ErrorKind:     records.Ptr(job.ErrorKind("")),
		}
		evType = event.EventDownloadCompleted
		payload.FilePath = st.FilePath
		payload.FileSize = st.FileSize
	} else {
		msg, kind := st.Error, st.ErrorKind
		if msg == "" {
			msg = "download failed"
		}
		if kind == "" {
			kind = job.KindProcessFailed
		}
		patch = records.Patch{
			Status:       records.Ptr(job.StatusError),
			ErrorMessage: records.Ptr(msg),
			ErrorKind:    records.Ptr(kind),
		}
		evType = event.EventDownloadFailed
		payload.Error = msg
		payload.ErrorKind = string(kind)
	}

	updated, err := r.records.Upsert(ctx, id, patch)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("apply terminal state failed, will retry next poll")
		return
	}

	r.publish(ctx, evType, payload)
	r.markApplied(id, st.Status)
	log.Info().Str("id", id).Str("status", string(st.Status)).Str("kind", string(st.ErrorKind)).Msg("download finished")

	r.ack(ctx, id)
	r.slots.Release(ctx, id)

	if st.Status == job.StatusDone && r.onDone != nil {
		r.onDone(ctx, updated)
	}
}

func (r *Reconciler) markApplied(id string, status job.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[id] = status
	delete(r.missing, id)
	delete(r.progress, id)
}

func (r *Reconciler) ack(ctx context.Context, id string) {
	if err := r.source.Ack(ctx, id); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("ack failed, will resend")
	}
}

// detectGaps fails active ids that have been absent from gapPolls
// consecutive snapshots. The worker most likely restarted and lost them.
func (r *Reconciler) detectGaps(ctx context.Context, snap map[string]job.State) {
	active := r.slots.Active()
	activeSet := make(map[string]struct{}, len(active))

	var lost []string
	r.mu.Lock()
	for _, id := range active {
		activeSet[id] = struct{}{}
		if _, ok := snap[id]; ok {
			delete(r.missing, id)
			continue
		}
		r.missing[id]++
		if r.missing[id] >= gapPolls {
			delete(r.missing, id)
			lost = append(lost, id)
		}
	}
	for id := range r.missing {
		if _, ok := activeSet[id]; !ok {
			delete(r.missing, id)
		}
	}
	r.mu.Unlock()

	for _, id := range lost {
		log.Warn().Str("id", id).Int("polls", gapPolls).Msg("active download missing from worker, marking lost")
		if _, err := r.records.Upsert(ctx, id, records.Patch{
			Status:       records.Ptr(job.StatusError),
			ErrorMessage: records.Ptr(job.MsgLostJob),
			ErrorKind:    records.Ptr(job.KindLostJob),
		}); err != nil {
			log.Error().Err(err).Str("id", id).Msg("failed to record lost job")
		}
		r.publish(ctx, event.EventDownloadFailed, event.DownloadEvent{
			ID: id, Status: string(job.StatusError), Error: job.MsgLostJob, ErrorKind: string(job.KindLostJob),
		})
		r.slots.Release(ctx, id)
	}
}

// Progress returns the last non-terminal state seen per id.
func (r *Reconciler) Progress() map[string]job.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.progress)
}

// Forget drops the shadow state for id.
func (r *Reconciler) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.applied, id)
	delete(r.missing, id)
	delete(r.progress, id)
}

func (r *Reconciler) publish(ctx context.Context, t event.EventType, payload event.DownloadEvent) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(ctx, event.Event{Type: t, Payload: payload})
}

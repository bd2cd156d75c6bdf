package queue

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/event"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

// Item is the catalog information supplied when enqueueing.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	PublishedAt time.Time `json:"published_at"`
	IsShort     bool      `json:"is_short"`
}

type entry struct {
	id        string
	published time.Time
}

// Controller holds the client-side backlog and enforces the client-side
// ceiling. The worker enforces its own ceiling independently.
type Controller struct {
	submitter Submitter
	records   Records
	auth      AuthProvider
	conn      Connectivity
	bus       event.Bus
	onSubmit  func()

	mu      sync.Mutex
	ceiling int
	backlog []entry
	active  map[string]struct{}
}

type Option func(*Controller)

func WithAuth(a AuthProvider) Option          { return func(c *Controller) { c.auth = a } }
func WithConnectivity(cn Connectivity) Option { return func(c *Controller) { c.conn = cn } }
func WithBus(b event.Bus) Option              { return func(c *Controller) { c.bus = b } }

// WithOnSubmit registers fn to run after every accepted submission.
func WithOnSubmit(fn func()) Option { return func(c *Controller) { c.onSubmit = fn } }

func New(submitter Submitter, recs Records, ceiling int, opts ...Option) *Controller {
	c := &Controller{
		submitter: submitter,
		records:   recs,
		ceiling:   job.ClampCeiling(ceiling),
		active:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue records it as queued and adds it to the backlog. It returns false
// without side effects when the record is already done or downloading, or
// when the id is already queued here.
func (c *Controller) Enqueue(ctx context.Context, it Item) (bool, error) {
	existing, err := c.records.Get(ctx, it.ID)
	switch {
	case err == nil:
		if existing.Status == job.StatusDone || existing.Status == job.StatusDownloading {
			return false, nil
		}
	case !errors.Is(err, records.ErrNotFound):
		return false, err
	}

	if c.tracked(it.ID) {
		return false, nil
	}

	if _, err := c.records.Upsert(ctx, it.ID, catalogPatch(it)); err != nil {
		return false, err
	}

	c.mu.Lock()
	if c.trackedLocked(it.ID) {
		c.mu.Unlock()
		return false, nil
	}
	e := entry{id: it.ID, published: it.PublishedAt}
	idx := sort.Search(len(c.backlog), func(i int) bool {
		return c.backlog[i].published.Before(e.published)
	})
	c.backlog = slices.Insert(c.backlog, idx, e)
	depth := len(c.backlog)
	c.mu.Unlock()

	log.Debug().Str("id", it.ID).Int("backlog", depth).Msg("item enqueued")
	c.publish(ctx, event.EventDownloadQueued, event.DownloadEvent{ID: it.ID, Status: string(job.StatusQueued)})

	c.Drain(ctx)
	return true, nil
}

func catalogPatch(it Item) records.Patch {
	p := records.Patch{
		Status:       records.Ptr(job.StatusQueued),
		ErrorMessage: records.Ptr(""),
		ErrorKind:    records.Ptr(job.ErrorKind("")),
	}
	if it.Title != "" {
		p.Title = records.Ptr(it.Title)
	}
	if it.ChannelID != "" {
		p.ChannelID = records.Ptr(it.ChannelID)
	}
	if it.ChannelName != "" {
		p.ChannelName = records.Ptr(it.ChannelName)
	}
	if !it.PublishedAt.IsZero() {
		p.PublishedAt = records.Ptr(it.PublishedAt)
	}
	if it.IsShort {
		p.IsShort = records.Ptr(true)
	}
	return p
}

// Drain submits backlog entries, newest first, while slots are free.
func (c *Controller) Drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.active) >= c.ceiling || len(c.backlog) == 0 {
			c.mu.Unlock()
			return
		}
		next := c.backlog[0]
		c.backlog = c.backlog[1:]
		c.active[next.id] = struct{}{}
		c.mu.Unlock()

		c.submit(ctx, next.id)
	}
}

// submit hands id to the worker. Record writes for id happen under c.mu and
// only while id still holds a slot, so a concurrent Cancel is never
// overwritten.
func (c *Controller) submit(ctx context.Context, id string) {
	c.mu.Lock()
	if _, ok := c.active[id]; !ok {
		c.mu.Unlock()
		log.Debug().Str("id", id).Msg("cancelled before submission")
		return
	}
	if _, err := c.records.Upsert(ctx, id, records.Patch{
		Status:       records.Ptr(job.StatusDownloading),
		ErrorMessage: records.Ptr(""),
		ErrorKind:    records.Ptr(job.ErrorKind("")),
	}); err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to mark item downloading")
	}
	c.mu.Unlock()

	if c.conn != nil && !c.conn.Connected() {
		c.reject(ctx, id, job.Fail(job.KindSubmissionRejected, job.MsgNotConnected))
		return
	}

	var authContext string
	if c.auth != nil {
		a, err := c.auth.AuthContext(ctx)
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("auth context unavailable, submitting without cookies")
		}
		authContext = a
	}

	if err := c.submitter.Submit(ctx, id, authContext); err != nil {
		c.reject(ctx, id, job.Fail(job.KindSubmissionRejected, "submit failed: %v", err))
		return
	}

	if !c.isActive(id) {
		// Cancelled while the submission was in flight.
		if err := c.submitter.Cancel(ctx, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("cancel after submit failed")
		}
		return
	}

	log.Info().Str("id", id).Msg("download submitted")
	c.publish(ctx, event.EventDownloadStarted, event.DownloadEvent{ID: id, Status: string(job.StatusDownloading)})
	if c.onSubmit != nil {
		c.onSubmit()
	}
}

// reject records a submission failure and frees the slot. There is no retry.
// An id cancelled in the meantime keeps its cancelled record.
func (c *Controller) reject(ctx context.Context, id string, f *job.Failure) {
	c.mu.Lock()
	if _, ok := c.active[id]; !ok {
		c.mu.Unlock()
		log.Debug().Str("id", id).Str("error", f.Message).Msg("submission failed after cancel")
		return
	}
	delete(c.active, id)
	if _, err := c.records.Upsert(ctx, id, records.Patch{
		Status:       records.Ptr(job.StatusError),
		ErrorMessage: records.Ptr(f.Message),
		ErrorKind:    records.Ptr(f.Kind),
	}); err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to record submission failure")
	}
	c.mu.Unlock()

	log.Warn().Str("id", id).Str("kind", string(f.Kind)).Str("error", f.Message).Msg("submission rejected")
	c.publish(ctx, event.EventDownloadFailed, event.DownloadEvent{
		ID: id, Status: string(job.StatusError), Error: f.Message, ErrorKind: string(f.Kind),
	})
}

// Release frees the slot held by id and refills it from the backlog.
func (c *Controller) Release(ctx context.Context, id string) {
	c.mu.Lock()
	delete(c.active, id)
	c.mu.Unlock()
	c.Drain(ctx)
}

// Cancel drops id from the backlog or the active set, asks the worker to
// cancel it and records it as cancelled. It reports whether id was tracked.
func (c *Controller) Cancel(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	_, wasActive := c.active[id]
	delete(c.active, id)
	wasQueued := false
	for i, e := range c.backlog {
		if e.id == id {
			c.backlog = slices.Delete(c.backlog, i, i+1)
			wasQueued = true
			break
		}
	}
	c.mu.Unlock()

	tracked := wasActive || wasQueued
	if !tracked {
		rec, err := c.records.Get(ctx, id)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if rec.Status.Terminal() {
			return false, nil
		}
	}

	if wasActive || !wasQueued {
		if err := c.submitter.Cancel(ctx, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("worker cancel failed")
		}
	}

	if _, err := c.records.Upsert(ctx, id, records.Patch{
		Status:       records.Ptr(job.StatusError),
		ErrorMessage: records.Ptr(job.MsgCancelled),
		ErrorKind:    records.Ptr(job.KindCancelled),
	}); err != nil {
		return tracked, err
	}

	log.Info().Str("id", id).Bool("active", wasActive).Msg("download cancelled")
	c.publish(ctx, event.EventDownloadCancelled, event.DownloadEvent{
		ID: id, Status: string(job.StatusError), Error: job.MsgCancelled, ErrorKind: string(job.KindCancelled),
	})

	c.Drain(ctx)
	return true, nil
}

// SetCeiling clamps n to the supported range and drains with the new value.
func (c *Controller) SetCeiling(ctx context.Context, n int) {
	c.mu.Lock()
	c.ceiling = job.ClampCeiling(n)
	c.mu.Unlock()
	c.Drain(ctx)
}

func (c *Controller) Ceiling() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ceiling
}

// Reset drops the backlog and cancels every active job.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	c.active = make(map[string]struct{})
	dropped := len(c.backlog)
	c.backlog = nil
	c.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		if err := c.submitter.Cancel(ctx, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("worker cancel failed")
		}
		if _, err := c.records.Upsert(ctx, id, records.Patch{
			Status:       records.Ptr(job.StatusError),
			ErrorMessage: records.Ptr(job.MsgCancelled),
			ErrorKind:    records.Ptr(job.KindCancelled),
		}); err != nil {
			log.Error().Err(err).Str("id", id).Msg("failed to record cancellation")
		}
	}
	log.Info().Int("cancelled", len(ids)).Int("dropped", dropped).Msg("queue reset")
}

// Outstanding reports whether anything is active or waiting.
func (c *Controller) Outstanding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active) > 0 || len(c.backlog) > 0
}

// Active returns the ids holding a slot, sorted.
func (c *Controller) Active() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Status is a point-in-time view of the controller.
type Status struct {
	Ceiling int      `json:"ceiling"`
	Active  []string `json:"active"`
	Backlog []string `json:"backlog"`
}

func (c *Controller) Snapshot() Status {
	active := c.Active()
	c.mu.Lock()
	defer c.mu.Unlock()
	backlog := make([]string, len(c.backlog))
	for i, e := range c.backlog {
		backlog[i] = e.id
	}
	return Status{Ceiling: c.ceiling, Active: active, Backlog: backlog}
}

func (c *Controller) isActive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[id]
	return ok
}

func (c *Controller) tracked(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackedLocked(id)
}

func (c *Controller) trackedLocked(id string) bool {
	if _, ok := c.active[id]; ok {
		return true
	}
	for _, e := range c.backlog {
		if e.id == id {
			return true
		}
	}
	return false
}

func (c *Controller) publish(ctx context.Context, t event.EventType, payload event.DownloadEvent) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(ctx, event.Event{Type: t, Payload: payload})
}

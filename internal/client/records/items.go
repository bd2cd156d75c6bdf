package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/viperadnan-git/tubestash/internal/core/job"
)

type Item struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	ChannelID     string        `json:"channel_id"`
	ChannelName   string        `json:"channel_name"`
	PublishedAt   time.Time     `json:"published_at"`
	IsShort       bool          `json:"is_short"`
	Status        job.Status    `json:"status"`
	FilePath      string        `json:"file_path,omitempty"`
	ThumbnailPath string        `json:"thumbnail_path,omitempty"`
	FileSize      int64         `json:"file_size,omitempty"`
	Duration      int64         `json:"duration,omitempty"`
	Description   string        `json:"description,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ErrorKind     job.ErrorKind `json:"error_kind,omitempty"`
	Watched       bool          `json:"watched"`
	DownloadedAt  time.Time     `json:"downloaded_at,omitzero"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Cancelled reports whether the item ended by user cancellation rather
// than a failure.
func (it Item) Cancelled() bool {
	return it.Status == job.StatusError && it.ErrorKind == job.KindCancelled
}

type itemRow struct {
	ID            string `db:"id"`
	Title         string `db:"title"`
	ChannelID     string `db:"channel_id"`
	ChannelName   string `db:"channel_name"`
	PublishedAt   string `db:"published_at"`
	IsShort       bool   `db:"is_short"`
	Status        string `db:"status"`
	FilePath      string `db:"file_path"`
	ThumbnailPath string `db:"thumbnail_path"`
	FileSize      int64  `db:"file_size"`
	Duration      int64  `db:"duration"`
	Description   string `db:"description"`
	ErrorMessage  string `db:"error_message"`
	ErrorKind     string `db:"error_kind"`
	Watched       bool   `db:"watched"`
	DownloadedAt  string `db:"downloaded_at"`
	UpdatedAt     string `db:"updated_at"`
}

func (r itemRow) item() Item {
	return Item{
		ID:            r.ID,
		Title:         r.Title,
		ChannelID:     r.ChannelID,
		ChannelName:   r.ChannelName,
		PublishedAt:   parseTime(r.PublishedAt),
		IsShort:       r.IsShort,
		Status:        job.Status(r.Status),
		FilePath:      r.FilePath,
		ThumbnailPath: r.ThumbnailPath,
		FileSize:      r.FileSize,
		Duration:      r.Duration,
		Description:   r.Description,
		ErrorMessage:  r.ErrorMessage,
		ErrorKind:     job.ErrorKind(r.ErrorKind),
		Watched:       r.Watched,
		DownloadedAt:  parseTime(r.DownloadedAt),
		UpdatedAt:     parseTime(r.UpdatedAt),
	}
}

func rowOf(it Item) itemRow {
	return itemRow{
		ID:            it.ID,
		Title:         it.Title,
		ChannelID:     it.ChannelID,
		ChannelName:   it.ChannelName,
		PublishedAt:   formatTime(it.PublishedAt),
		IsShort:       it.IsShort,
		Status:        string(it.Status),
		FilePath:      it.FilePath,
		ThumbnailPath: it.ThumbnailPath,
		FileSize:      it.FileSize,
		Duration:      it.Duration,
		Description:   it.Description,
		ErrorMessage:  it.ErrorMessage,
		ErrorKind:     string(it.ErrorKind),
		Watched:       it.Watched,
		DownloadedAt:  formatTime(it.DownloadedAt),
		UpdatedAt:     formatTime(it.UpdatedAt),
	}
}

// Patch is a partial update. Nil fields leave the stored value untouched.
type Patch struct {
	Title         *string
	ChannelID     *string
	ChannelName   *string
	PublishedAt   *time.Time
	IsShort       *bool
	Status        *job.Status
	FilePath      *string
	ThumbnailPath *string
	FileSize      *int64
	Duration      *int64
	Description   *string
	ErrorMessage  *string
	ErrorKind     *job.ErrorKind
	Watched       *bool
	DownloadedAt  *time.Time
}

func Ptr[T any](v T) *T { return &v }

func (p Patch) Apply(it *Item) {
	set(&it.Title, p.Title)
	set(&it.ChannelID, p.ChannelID)
	set(&it.ChannelName, p.ChannelName)
	set(&it.PublishedAt, p.PublishedAt)
	set(&it.IsShort, p.IsShort)
	set(&it.Status, p.Status)
	set(&it.FilePath, p.FilePath)
	set(&it.ThumbnailPath, p.ThumbnailPath)
	set(&it.FileSize, p.FileSize)
	set(&it.Duration, p.Duration)
	set(&it.Description, p.Description)
	set(&it.ErrorMessage, p.ErrorMessage)
	set(&it.ErrorKind, p.ErrorKind)
	set(&it.Watched, p.Watched)
	set(&it.DownloadedAt, p.DownloadedAt)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

const selectItem = `SELECT id, title, channel_id, channel_name, published_at, is_short, status,
	file_path, thumbnail_path, file_size, duration, description, error_message, error_kind,
	watched, downloaded_at, updated_at FROM items`

const upsertItem = `
	INSERT INTO items (
		id, title, channel_id, channel_name, published_at, is_short, status,
		file_path, thumbnail_path, file_size, duration, description, error_message, error_kind,
		watched, downloaded_at, updated_at
	) VALUES (
		:id, :title, :channel_id, :channel_name, :published_at, :is_short, :status,
		:file_path, :thumbnail_path, :file_size, :duration, :description, :error_message, :error_kind,
		:watched, :downloaded_at, :updated_at
	)
	ON CONFLICT (id) DO UPDATE SET
		title = excluded.title,
		channel_id = excluded.channel_id,
		channel_name = excluded.channel_name,
		published_at = excluded.published_at,
		is_short = excluded.is_short,
		status = excluded.status,
		file_path = excluded.file_path,
		thumbnail_path = excluded.thumbnail_path,
		file_size = excluded.file_size,
		duration = excluded.duration,
		description = excluded.description,
		error_message = excluded.error_message,
		error_kind = excluded.error_kind,
		watched = excluded.watched,
		downloaded_at = excluded.downloaded_at,
		updated_at = excluded.updated_at`

func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectItem+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return row.item(), nil
}

// Upsert merges p into the record for id, creating it as queued when it
// does not exist yet, and returns the merged record.
func (s *Store) Upsert(ctx context.Context, id string, p Patch) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	it := Item{ID: id, Status: job.StatusQueued}
	var row itemRow
	err = tx.GetContext(ctx, &row, tx.Rebind(selectItem+` WHERE id = ?`), id)
	switch {
	case err == nil:
		it = row.item()
	case !errors.Is(err, sql.ErrNoRows):
		return Item{}, fmt.Errorf("load item %s: %w", id, err)
	}

	p.Apply(&it)
	it.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	if _, err := tx.NamedExecContext(ctx, upsertItem, rowOf(it)); err != nil {
		return Item{}, fmt.Errorf("upsert item %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("commit: %w", err)
	}
	return it, nil
}

// List returns every record, newest published first.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, selectItem+` ORDER BY published_at DESC, id`); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = r.item()
	}
	return items, nil
}

// ListByStatus returns records with the given status, newest published first.
func (s *Store) ListByStatus(ctx context.Context, status job.Status) ([]Item, error) {
	var rows []itemRow
	q := s.db.Rebind(selectItem + ` WHERE status = ? ORDER BY published_at DESC, id`)
	if err := s.db.SelectContext(ctx, &rows, q, string(status)); err != nil {
		return nil, fmt.Errorf("list items by status: %w", err)
	}
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = r.item()
	}
	return items, nil
}

// ListWatchedBefore returns watched records downloaded before cutoff.
func (s *Store) ListWatchedBefore(ctx context.Context, cutoff time.Time) ([]Item, error) {
	var rows []itemRow
	q := s.db.Rebind(selectItem + ` WHERE watched = ? AND downloaded_at <> '' AND downloaded_at < ? ORDER BY downloaded_at`)
	if err := s.db.SelectContext(ctx, &rows, q, true, formatTime(cutoff)); err != nil {
		return nil, fmt.Errorf("list watched items: %w", err)
	}
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = r.item()
	}
	return items, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM items WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

// Clear removes every item record. Settings and sync history are kept.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	return nil
}

type Counts struct {
	Total       int `json:"total"`
	Queued      int `json:"queued"`
	Downloading int `json:"downloading"`
	Done        int `json:"done"`
	Failed      int `json:"failed"`
	Cancelled   int `json:"cancelled"`
	Watched     int `json:"watched"`
	Unwatched   int `json:"unwatched"`
}

// Counts tallies records per status. Cancelled items are counted apart
// from failures; Unwatched only counts finished downloads.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var groups []struct {
		Status    string `db:"status"`
		ErrorKind string `db:"error_kind"`
		Watched   bool   `db:"watched"`
		N         int    `db:"n"`
	}
	q := `SELECT status, error_kind, watched, COUNT(*) AS n FROM items GROUP BY status, error_kind, watched`
	if err := s.db.SelectContext(ctx, &groups, q); err != nil {
		return Counts{}, fmt.Errorf("count items: %w", err)
	}

	var c Counts
	for _, g := range groups {
		c.Total += g.N
		switch job.Status(g.Status) {
		case job.StatusQueued:
			c.Queued += g.N
		case job.StatusDownloading:
			c.Downloading += g.N
		case job.StatusDone:
			c.Done += g.N
			if !g.Watched {
				c.Unwatched += g.N
			}
		case job.StatusError:
			if job.ErrorKind(g.ErrorKind) == job.KindCancelled {
				c.Cancelled += g.N
			} else {
				c.Failed += g.N
			}
		}
		if g.Watched {
			c.Watched += g.N
		}
	}
	return c, nil
}

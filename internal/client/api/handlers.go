package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/viperadnan-git/tubestash/internal/client/api/response"
	"github.com/viperadnan-git/tubestash/internal/client/monitor"
	"github.com/viperadnan-git/tubestash/internal/client/queue"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

var videoID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Queue interface {
	Enqueue(ctx context.Context, it queue.Item) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
	SetCeiling(ctx context.Context, n int)
	Snapshot() queue.Status
}

type Records interface {
	Get(ctx context.Context, id string) (records.Item, error)
	List(ctx context.Context) ([]records.Item, error)
	ListByStatus(ctx context.Context, status job.Status) ([]records.Item, error)
	Settings(ctx context.Context) (records.Settings, error)
	SaveSettings(ctx context.Context, st records.Settings) (records.Settings, error)
	LastPoll(ctx context.Context) (*records.PollResult, error)
}

type Library interface {
	MarkWatched(ctx context.Context, id string, watched bool) (records.Item, error)
	Delete(ctx context.Context, id string) error
	ClearAndRedownload(ctx context.Context) (records.PollResult, error)
	Counts(ctx context.Context) (records.Counts, error)
}

type Syncer interface {
	Sync(ctx context.Context) (records.PollResult, error)
}

type Monitor interface {
	Status() monitor.Status
	Retry(ctx context.Context) bool
}

type Progress interface {
	Progress() map[string]job.State
}

type DiskUsage interface {
	DiskUsage(ctx context.Context) (int64, error)
}

// Deps groups everything the local API reads from or drives.
type Deps struct {
	Queue    Queue
	Records  Records
	Library  Library
	Syncer   Syncer
	Monitor  Monitor
	Progress Progress
	Disk     DiskUsage
}

type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// --- DTO types ---

type StatusDTO struct {
	Connection monitor.Status       `json:"connection"`
	Queue      queue.Status         `json:"queue"`
	Progress   map[string]job.State `json:"progress"`
	Counts     records.Counts       `json:"counts"`
	LastPoll   *records.PollResult  `json:"last_poll"`
	Settings   records.Settings     `json:"settings"`
}

type EnqueueRequest struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	PublishedAt time.Time `json:"published_at"`
	IsShort     bool      `json:"is_short"`
}

type WatchedRequest struct {
	Watched *bool `json:"watched"`
}

// --- Handlers ---

func (h *Handler) Health(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.Library.Counts(ctx)
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "STATUS_ERROR", err.Error())
	}
	lastPoll, err := h.Records.LastPoll(ctx)
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "STATUS_ERROR", err.Error())
	}
	settings, err := h.Records.Settings(ctx)
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "STATUS_ERROR", err.Error())
	}

	return response.Success(c, http.StatusOK, StatusDTO{
		Connection: h.Monitor.Status(),
		Queue:      h.Queue.Snapshot(),
		Progress:   h.Progress.Progress(),
		Counts:     counts,
		LastPoll:   lastPoll,
		Settings:   settings,
	})
}

func (h *Handler) ListVideos(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		items []records.Item
		err   error
	)
	if s := c.QueryParam("status"); s != "" {
		status := job.Status(s)
		if !status.Valid() {
			return response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "unknown status "+s)
		}
		items, err = h.Records.ListByStatus(ctx, status)
	} else {
		items, err = h.Records.List(ctx)
	}
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "LIST_ERROR", err.Error())
	}
	if items == nil {
		items = []records.Item{}
	}
	return response.Success(c, http.StatusOK, items)
}

func (h *Handler) GetVideo(c echo.Context) error {
	it, err := h.Records.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr(c, err, "GET_ERROR")
	}
	return response.Success(c, http.StatusOK, it)
}

func (h *Handler) Enqueue(c echo.Context) error {
	var req EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
	}
	if !videoID.MatchString(req.ID) {
		return response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "id must match "+videoID.String())
	}

	queued, err := h.Queue.Enqueue(c.Request().Context(), queue.Item{
		ID:          req.ID,
		Title:       req.Title,
		ChannelID:   req.ChannelID,
		ChannelName: req.ChannelName,
		PublishedAt: req.PublishedAt,
		IsShort:     req.IsShort,
	})
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "ENQUEUE_ERROR", err.Error())
	}

	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	return response.Success(c, status, map[string]any{"id": req.ID, "queued": queued})
}

func (h *Handler) Cancel(c echo.Context) error {
	id := c.Param("id")
	cancelled, err := h.Queue.Cancel(c.Request().Context(), id)
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "CANCEL_ERROR", err.Error())
	}
	return response.Success(c, http.StatusOK, map[string]any{"id": id, "cancelled": cancelled})
}

func (h *Handler) MarkWatched(c echo.Context) error {
	var req WatchedRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
	}
	watched := true
	if req.Watched != nil {
		watched = *req.Watched
	}

	it, err := h.Library.MarkWatched(c.Request().Context(), c.Param("id"), watched)
	if err != nil {
		return notFoundOr(c, err, "UPDATE_ERROR")
	}
	return response.Success(c, http.StatusOK, it)
}

func (h *Handler) DeleteVideo(c echo.Context) error {
	id := c.Param("id")
	if err := h.Library.Delete(c.Request().Context(), id); err != nil {
		return notFoundOr(c, err, "DELETE_ERROR")
	}
	return response.Success(c, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) Sync(c echo.Context) error {
	res, err := h.Syncer.Sync(c.Request().Context())
	if err != nil {
		return response.Error(c, http.StatusBadGateway, "SYNC_ERROR", err.Error())
	}
	return response.Success(c, http.StatusOK, res)
}

func (h *Handler) RetryConnection(c echo.Context) error {
	h.Monitor.Retry(c.Request().Context())
	return response.Success(c, http.StatusOK, h.Monitor.Status())
}

func (h *Handler) GetSettings(c echo.Context) error {
	st, err := h.Records.Settings(c.Request().Context())
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "SETTINGS_ERROR", err.Error())
	}
	return response.Success(c, http.StatusOK, st)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	ctx := c.Request().Context()

	current, err := h.Records.Settings(ctx)
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "SETTINGS_ERROR", err.Error())
	}
	// Fields left out of the body keep their current value.
	if err := c.Bind(&current); err != nil {
		return response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
	}

	saved, err := h.Records.SaveSettings(ctx, current)
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "SETTINGS_ERROR", err.Error())
	}
	h.Queue.SetCeiling(ctx, saved.Concurrency)

	log.Info().
		Int("concurrency", saved.Concurrency).
		Int("poll_interval_minutes", saved.PollIntervalMinutes).
		Int("max_age_days", saved.MaxAgeDays).
		Msg("settings updated")
	return response.Success(c, http.StatusOK, saved)
}

func (h *Handler) Reset(c echo.Context) error {
	res, err := h.Library.ClearAndRedownload(c.Request().Context())
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "RESET_ERROR", err.Error())
	}
	return response.Success(c, http.StatusOK, res)
}

// DiskUsage reports zero when the worker cannot be reached.
func (h *Handler) DiskUsage(c echo.Context) error {
	total, err := h.Disk.DiskUsage(c.Request().Context())
	if err != nil {
		log.Debug().Err(err).Msg("disk usage unavailable")
		total = 0
	}
	return response.Success(c, http.StatusOK, map[string]int64{"total_bytes": total})
}

func notFoundOr(c echo.Context, err error, code string) error {
	if errors.Is(err, records.ErrNotFound) {
		return response.Error(c, http.StatusNotFound, "NOT_FOUND", "video not found")
	}
	return response.Error(c, http.StatusInternalServerError, code, err.Error())
}

package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/core/job"
)

// Engine is the subset of the execution engine the Control API drives.
type Engine interface {
	Submit(id, authContext string) error
	Cancel(id string) bool
	Ack(id string) bool
	Snapshot() map[string]job.State
}

// Storage is the artifacts root as seen by the Control API.
type Storage interface {
	Delete(ctx context.Context, rel string) error
	Usage(ctx context.Context) (int64, error)
}

type Handler struct {
	engine  Engine
	storage Storage
	pid     int
}

func NewHandler(engine Engine, storage Storage, pid int) *Handler {
	return &Handler{engine: engine, storage: storage, pid: pid}
}

type PingOutput struct {
	Body struct {
		OK  bool `json:"ok"`
		PID int  `json:"pid" doc:"Worker process id"`
	}
}

func (h *Handler) Ping(_ context.Context, _ *struct{}) (*PingOutput, error) {
	out := &PingOutput{}
	out.Body.OK = true
	out.Body.PID = h.pid
	return out, nil
}

type DownloadsOutput struct {
	Body map[string]job.State
}

func (h *Handler) Downloads(_ context.Context, _ *struct{}) (*DownloadsOutput, error) {
	return &DownloadsOutput{Body: h.engine.Snapshot()}, nil
}

type SubmitInput struct {
	Body struct {
		ID          string `json:"id" pattern:"^[A-Za-z0-9_-]{1,64}$" doc:"Item id"`
		AuthContext string `json:"authContext,omitempty" doc:"Netscape-format cookies passed to yt-dlp"`
	}
}

func (h *Handler) Submit(_ context.Context, input *SubmitInput) (*OKOutput, error) {
	if err := h.engine.Submit(input.Body.ID, input.Body.AuthContext); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return ok(), nil
}

type IDInput struct {
	Body struct {
		ID string `json:"id" pattern:"^[A-Za-z0-9_-]{1,64}$" doc:"Item id"`
	}
}

func (h *Handler) Cancel(_ context.Context, input *IDInput) (*OKOutput, error) {
	h.engine.Cancel(input.Body.ID)
	return ok(), nil
}

func (h *Handler) Ack(_ context.Context, input *IDInput) (*OKOutput, error) {
	h.engine.Ack(input.Body.ID)
	return ok(), nil
}

type DeleteFilesInput struct {
	Body struct {
		FilePath      string `json:"filePath,omitempty" maxLength:"1024" doc:"Media path relative to the artifacts root"`
		ThumbnailPath string `json:"thumbnailPath,omitempty" maxLength:"1024" doc:"Thumbnail path relative to the artifacts root"`
	}
}

// DeleteFiles is best effort: failures are logged, never returned.
func (h *Handler) DeleteFiles(ctx context.Context, input *DeleteFilesInput) (*OKOutput, error) {
	for _, p := range []string{input.Body.FilePath, input.Body.ThumbnailPath} {
		if p == "" {
			continue
		}
		if err := h.storage.Delete(ctx, p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("delete artifact failed")
			continue
		}
		log.Info().Str("path", p).Msg("artifact deleted")
	}
	return ok(), nil
}

type DiskUsageOutput struct {
	Body struct {
		TotalBytes int64 `json:"totalBytes" doc:"Bytes used under the artifacts root"`
	}
}

func (h *Handler) DiskUsage(ctx context.Context, _ *struct{}) (*DiskUsageOutput, error) {
	total, err := h.storage.Usage(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("disk usage scan incomplete")
	}
	out := &DiskUsageOutput{}
	out.Body.TotalBytes = total
	return out, nil
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/config"
	"github.com/viperadnan-git/tubestash/internal/core/engine/ytdlp"
	"github.com/viperadnan-git/tubestash/internal/core/fileserver"
	"github.com/viperadnan-git/tubestash/internal/core/jobstore"
	"github.com/viperadnan-git/tubestash/internal/core/process"
	"github.com/viperadnan-git/tubestash/internal/core/storage"
	"github.com/viperadnan-git/tubestash/internal/worker/api"
)

const (
	mediaPrefix     = "/media"
	janitorInterval = time.Minute
)

func Run(ctx context.Context, cfg *config.Config) error {
	cfg.Logging.Apply()

	root, err := storage.NewRoot(cfg.Worker.VideosDir)
	if err != nil {
		return err
	}

	retention := config.ParseDuration(cfg.Worker.Retention, 24*time.Hour)
	store := jobstore.New(retention)
	eng := ytdlp.New(ytdlp.Config{
		Binary:           cfg.Worker.Binary,
		VideosDir:        root.Base(),
		TempDir:          cfg.Worker.TempDir,
		CookiesPath:      cfg.Worker.CookiesPath,
		FormatSort:       cfg.Worker.FormatSort,
		URLTemplate:      cfg.Worker.URLTemplate,
		MaxConcurrent:    cfg.Worker.MaxConcurrent,
		ProgressInterval: config.ParseDuration(cfg.Worker.ProgressInterval, time.Second),
	}, store, process.NewExecSpawner(config.ParseDuration(cfg.Worker.StopGrace, 5*time.Second)))
	if err := eng.Init(ctx); err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	if v, err := eng.Version(ctx); err == nil {
		log.Info().Str("version", v).Msg("yt-dlp available")
	}

	addr := net.JoinHostPort(cfg.Worker.Host, strconv.Itoa(cfg.Worker.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			log.Warn().Str("addr", addr).Msg("address in use, another worker is already running")
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	if err := writePIDFile(cfg.Worker.PIDFile); err != nil {
		log.Warn().Err(err).Str("path", cfg.Worker.PIDFile).Msg("failed to write pid file")
	}
	defer removePIDFile(cfg.Worker.PIDFile)

	e := NewRouter(eng, root)
	httpServer := &http.Server{Handler: e}

	go func() {
		log.Info().Str("addr", addr).Str("videos", root.Base()).Int("max_concurrent", eng.MaxConcurrent()).Msg("worker server started")
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("worker server failed")
		}
	}()

	workCtx, workCancel := context.WithCancel(ctx)
	defer workCancel()
	go store.RunJanitor(workCtx, janitorInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info().Msg("worker shutting down (signal)...")
	case <-ctx.Done():
		log.Info().Msg("worker shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("worker server shutdown error")
	}
	eng.Shutdown()
	return nil
}

// NewRouter builds the worker's echo instance: the Control API under /api
// and artifact serving under /media.
func NewRouter(eng api.Engine, root *storage.Root) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, "Range"},
		ExposeHeaders: []string{"Content-Range", echo.HeaderContentLength, "Accept-Ranges"},
	}))

	api.InitErrors()
	humaCfg := huma.DefaultConfig("tubestash worker", "1.0.0")
	humaCfg.Info.Description = "Control API for the yt-dlp execution engine"
	humaAPI := humaecho.New(e, humaCfg)
	api.Register(humaAPI, api.NewHandler(eng, root, os.Getpid()))

	fileserver.NewServer(root, mediaPrefix).RegisterRoutes(e)
	return e
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func removePIDFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove pid file")
	}
}

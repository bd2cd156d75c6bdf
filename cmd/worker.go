package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/tubestash/internal/worker"
)

func workerCmd() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the download worker (yt-dlp engine, control API and media server)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Listen host",
				Sources: cli.EnvVars("TS_WORKER_HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Listen port",
				Sources: cli.EnvVars("TS_WORKER_PORT"),
			},
			&cli.StringFlag{
				Name:    "videos-dir",
				Usage:   "Directory downloads are stored in",
				Sources: cli.EnvVars("TS_WORKER_VIDEOS_DIR"),
			},
			&cli.IntFlag{
				Name:  "max-concurrent",
				Usage: "Worker-side concurrency ceiling (1-4)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if v := cmd.String("host"); v != "" {
				cfg.Worker.Host = v
			}
			if v := cmd.Int("port"); v > 0 {
				cfg.Worker.Port = int(v)
			}
			if v := cmd.String("videos-dir"); v != "" {
				cfg.Worker.VideosDir = v
			}
			if v := cmd.Int("max-concurrent"); v > 0 {
				cfg.Worker.MaxConcurrent = int(v)
			}

			log.Info().Str("videos", cfg.Worker.VideosDir).Msg("starting worker")
			return worker.Run(ctx, cfg)
		},
	}
}

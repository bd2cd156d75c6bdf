package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/tubestash/internal/client"
)

func clientCmd() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Run the client (queue, reconciler, feed sync and local API)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-url",
				Usage:   "Worker base URL",
				Sources: cli.EnvVars("TS_CLIENT_WORKER_URL"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Local API listen address",
				Sources: cli.EnvVars("TS_CLIENT_LISTEN"),
			},
			&cli.StringFlag{
				Name:    "database-driver",
				Usage:   "Record store driver (sqlite3, pgx)",
				Sources: cli.EnvVars("TS_DATABASE_DRIVER"),
			},
			&cli.StringFlag{
				Name:    "database-dsn",
				Usage:   "Record store DSN (file path for sqlite3, connection string for pgx)",
				Sources: cli.EnvVars("TS_DATABASE_DSN"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if v := cmd.String("worker-url"); v != "" {
				cfg.Client.WorkerURL = v
			}
			if v := cmd.String("listen"); v != "" {
				cfg.Client.Listen = v
			}
			if v := cmd.String("database-driver"); v != "" {
				cfg.Database.Driver = v
			}
			if v := cmd.String("database-dsn"); v != "" {
				cfg.Database.DSN = v
			}

			log.Info().Str("worker", cfg.Client.WorkerURL).Str("database", cfg.Database.Driver).Msg("starting client")
			return client.Run(ctx, cfg)
		},
	}
}

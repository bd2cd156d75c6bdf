package cmd

import (
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/tubestash/internal/config"
)

var version = "dev"

func App() *cli.Command {
	return &cli.Command{
		Name:    "tubestash",
		Version: version,
		Usage:   "Download new videos from your subscriptions with yt-dlp and keep them for offline viewing.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("TUBESTASH_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("TUBESTASH_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			workerCmd(),
			clientCmd(),
			statusCmd(),
			enqueueCmd(),
		},
	}
}

// loadConfig reads the config file named by --config and applies the
// global flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	return cfg, nil
}

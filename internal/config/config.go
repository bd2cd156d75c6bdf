package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const envPrefix = "TS_"

type Config struct {
	Worker   WorkerConfig   `koanf:"worker"`
	Client   ClientConfig   `koanf:"client"`
	Database DatabaseConfig `koanf:"database"`
	Events   EventsConfig   `koanf:"events"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type WorkerConfig struct {
	Host             string `koanf:"host"`
	Port             int    `koanf:"port"`
	Binary           string `koanf:"binary"`
	VideosDir        string `koanf:"videos_dir"`
	CookiesPath      string `koanf:"cookies_path"`
	TempDir          string `koanf:"temp_dir"`
	MaxConcurrent    int    `koanf:"max_concurrent"`
	Retention        string `koanf:"retention"`
	ProgressInterval string `koanf:"progress_interval"`
	FormatSort       string `koanf:"format_sort"`
	URLTemplate      string `koanf:"url_template"`
	PIDFile          string `koanf:"pid_file"`
	StopGrace        string `koanf:"stop_grace"`
}

type ClientConfig struct {
	WorkerURL            string `koanf:"worker_url"`
	Listen               string `koanf:"listen"`
	Concurrency          int    `koanf:"concurrency"`
	DownloadPollInterval string `koanf:"download_poll_interval"`
	ConnectedInterval    string `koanf:"connected_interval"`
	DisconnectedInterval string `koanf:"disconnected_interval"`
	RequestTimeout       string `koanf:"request_timeout"`
	FeedPollInterval     string `koanf:"feed_poll_interval"`
	MaxAgeDays           int    `koanf:"max_age_days"`
	CleanupAfterDays     int    `koanf:"cleanup_after_days"`
	BacklogFile          string `koanf:"backlog_file"`
	CookiesPath          string `koanf:"cookies_path"`
	ShortsURL            string `koanf:"shorts_url"`
}

type DatabaseConfig struct {
	Driver         string `koanf:"driver"`
	DSN            string `koanf:"dsn"`
	MaxConnections int    `koanf:"max_connections"`
}

type EventsConfig struct {
	AMQPURL  string `koanf:"amqp_url"`
	Exchange string `koanf:"exchange"`
	Queue    string `koanf:"queue"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Apply sets the global zerolog level and, for format "json", swaps the
// console writer for plain JSON on stderr.
func (l LoggingConfig) Apply() {
	if lvl, err := zerolog.ParseLevel(l.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if strings.EqualFold(l.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// ParseDuration returns fallback for empty, invalid or non-positive values.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Load reads .env (if present), defaults, the TOML file (if provided) and
// finally TS_-prefixed env vars.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	k := koanf.New(".")

	// 1. Load defaults
	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	// 2. Load TOML config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// 3. Load env vars: TS_WORKER_VIDEOS_DIR -> worker.videos_dir
	// Keys contain underscores, so the mapping is resolved against the
	// known key set instead of replacing every "_" with ".".
	known := make(map[string]string)
	for _, key := range k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		flat := strings.ToLower(strings.TrimPrefix(key, envPrefix))
		mapped, ok := known[flat]
		if !ok {
			return "", nil
		}
		return mapped, value
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"worker.host":              "127.0.0.1",
		"worker.port":              9849,
		"worker.binary":            "yt-dlp",
		"worker.videos_dir":        "./data/videos",
		"worker.cookies_path":      "",
		"worker.temp_dir":          "",
		"worker.max_concurrent":    2,
		"worker.retention":         "24h",
		"worker.progress_interval": "1s",
		"worker.format_sort":       "res:1080",
		"worker.url_template":      "https://www.youtube.com/watch?v=%s",
		"worker.pid_file":          "./data/worker.pid",
		"worker.stop_grace":        "5s",

		"client.worker_url":             "http://127.0.0.1:9849",
		"client.listen":                 "127.0.0.1:9850",
		"client.concurrency":            2,
		"client.download_poll_interval": "1s",
		"client.connected_interval":     "60s",
		"client.disconnected_interval":  "30s",
		"client.request_timeout":        "5s",
		"client.feed_poll_interval":     "30m",
		"client.max_age_days":           14,
		"client.cleanup_after_days":     30,
		"client.backlog_file":           "./data/inbox.yaml",
		"client.cookies_path":           "",
		"client.shorts_url":             "https://www.youtube.com",

		"database.driver":          "sqlite3",
		"database.dsn":             "./data/tubestash.db",
		"database.max_connections": 10,

		"events.amqp_url": "",
		"events.exchange": "tubestash.events",
		"events.queue":    "",

		"logging.level":  "info",
		"logging.format": "pretty",
	}

	for key, val := range defaults {
		k.Set(key, val)
	}
	return nil
}

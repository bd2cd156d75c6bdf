package ytdlp

import "time"

// InfoJSON is the subset of yt-dlp's --print-json output the engine reads.
type InfoJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Channel     string  `json:"channel"`
	Duration    float64 `json:"duration"`
	Filename    string  `json:"filename"`
	AltFilename string  `json:"_filename"`
	Description string  `json:"description"`
}

// Config configures the execution engine.
type Config struct {
	Binary    string
	VideosDir string
	TempDir   string
	// CookiesPath, when it exists, is used instead of any submitted auth context.
	CookiesPath      string
	FormatSort       string
	URLTemplate      string
	MaxConcurrent    int
	ProgressInterval time.Duration
}

const (
	defaultBinary      = "yt-dlp"
	defaultURLTemplate = "https://www.youtube.com/watch?v=%s"
	defaultFormatSort  = "res:1080"
	thumbnailsDir      = "thumbnails"
	channelsDir        = "channels"
)

// thumbnailExts are tried in order next to the media file.
var thumbnailExts = []string{".jpg", ".webp", ".png"}

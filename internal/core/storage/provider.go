package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrOutsideRoot = errors.New("path escapes artifacts root")
	ErrIsDir       = errors.New("path is a directory")
)

type FileMetadata struct {
	Size        int64
	ContentType string
	ModTime     time.Time
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ContentType maps known media extensions; everything else is opaque binary.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

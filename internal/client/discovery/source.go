package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry is one candidate video. Short is nil when unknown.
type Entry struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	ChannelID   string    `yaml:"channel_id"`
	ChannelName string    `yaml:"channel_name"`
	Published   time.Time `yaml:"published"`
	Short       *bool     `yaml:"short,omitempty"`
}

type inbox struct {
	Videos []Entry `yaml:"videos"`
}

// FileSource reads entries from a YAML inbox file:
//
//	videos:
//	  - id: dQw4w9WgXcQ
//	    title: Some title
//	    channel_id: UC...
//	    channel_name: Some channel
//	    published: 2024-03-01T10:00:00Z
//
// A missing file yields no entries.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(_ context.Context) ([]Entry, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var in inbox
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse inbox %s: %w", f.Path, err)
	}
	return in.Videos, nil
}

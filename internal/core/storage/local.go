package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Root is the artifacts directory. Every path it accepts is relative to the
// root and must resolve inside it.
type Root struct {
	base string
}

func NewRoot(base string) (*Root, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve artifacts root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts root: %w", err)
	}
	return &Root{base: abs}, nil
}

func (r *Root) Base() string { return r.base }

// Resolve maps a slash-separated relative path to an absolute path under
// the root.
func (r *Root) Resolve(rel string) (string, error) {
	rel = strings.TrimLeft(filepath.FromSlash(rel), `/\`)
	full := filepath.Join(r.base, rel)
	if full != r.base && !strings.HasPrefix(full, r.base+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}

func (r *Root) Open(_ context.Context, rel string) (*os.File, FileMetadata, error) {
	path, err := r.Resolve(rel)
	if err != nil {
		return nil, FileMetadata{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, FileMetadata{}, fmt.Errorf("open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, FileMetadata{}, fmt.Errorf("stat file: %w", err)
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, FileMetadata{}, ErrIsDir
	}

	return f, FileMetadata{
		Size:        stat.Size(),
		ContentType: ContentType(path),
		ModTime:     stat.ModTime(),
	}, nil
}

// Delete removes one artifact. A missing file is not an error.
func (r *Root) Delete(_ context.Context, rel string) error {
	path, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	if path == r.base {
		return ErrIsDir
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Usage sums the size of every regular file under the root.
func (r *Root) Usage(ctx context.Context) (int64, error) {
	var total int64
	err := filepath.WalkDir(r.base, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

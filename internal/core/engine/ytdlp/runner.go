package ytdlp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/core/job"
	"github.com/viperadnan-git/tubestash/internal/core/process"
)

const maxLineSize = 16 << 20

// run is one launched yt-dlp process. A completion is applied only while
// its run is still the active one for the id.
type run struct {
	id      string
	seq     uint64
	handle  process.Handle
	cleanup func()
}

type outcome struct {
	code      int
	waitErr   error
	metadata  string
	lastError string
}

func (e *Engine) command(id, cookieFile string) process.Command {
	args := []string{"--no-playlist"}
	if e.cfg.FormatSort != "" {
		args = append(args, "-S", e.cfg.FormatSort)
	}
	args = append(args,
		"--merge-output-format", "mp4",
		"--write-thumbnail",
		"--convert-thumbnails", "jpg",
		"--newline",
		"--progress",
		"--print-json",
		"--windows-filenames",
	)
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	args = append(args,
		"-o", filepath.Join(e.cfg.VideosDir, channelsDir, "%(channel)s", "%(id)s.%(ext)s"),
		fmt.Sprintf(e.cfg.URLTemplate, id),
	)
	return process.Command{Name: e.cfg.Binary, Args: args, Dir: e.cfg.VideosDir}
}

// cookiesFor returns the cookie file for a run and a cleanup func. A
// configured cookies file wins over the submitted auth context.
func (e *Engine) cookiesFor(id, authContext string) (string, func(), error) {
	noop := func() {}
	if e.cfg.CookiesPath != "" {
		if _, err := os.Stat(e.cfg.CookiesPath); err == nil {
			return e.cfg.CookiesPath, noop, nil
		}
	}
	if strings.TrimSpace(authContext) == "" {
		return "", noop, nil
	}

	f, err := os.CreateTemp(e.cfg.TempDir, "cookies-"+id+"-*.txt")
	if err != nil {
		return "", noop, fmt.Errorf("write cookies: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.WriteString(authContext); err != nil {
		_ = f.Close()
		cleanup()
		return "", noop, fmt.Errorf("write cookies: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("write cookies: %w", err)
	}
	return name, cleanup, nil
}

// supervise drains the process output, waits for exit and hands the
// outcome to finish.
func (e *Engine) supervise(r *run) {
	var (
		mu    sync.Mutex
		out   outcome
		wg    sync.WaitGroup
		gate  = newThrottle(e.cfg.ProgressInterval, e.now)
		child = log.With().Str("id", r.id).Logger()
	)

	onProgress := func(line string) {
		if p, ok := parseProgress(line); ok && gate.allow() {
			e.progress(r, p)
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(r.handle.Stdout(), func(line string) {
			if strings.HasPrefix(line, "{") {
				mu.Lock()
				out.metadata = line
				mu.Unlock()
				return
			}
			child.Debug().Str("ytdlp", line).Msg("yt-dlp output")
			onProgress(line)
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(r.handle.Stderr(), func(line string) {
			child.Debug().Str("ytdlp", line).Msg("yt-dlp output")
			if strings.HasPrefix(line, "ERROR:") {
				mu.Lock()
				out.lastError = line
				mu.Unlock()
				return
			}
			onProgress(line)
		})
	}()
	wg.Wait()

	out.code, out.waitErr = r.handle.Wait()
	r.cleanup()
	e.finish(r, out)
}

func scanLines(rd io.Reader, fn func(string)) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			fn(line)
		}
	}
	if err := sc.Err(); err != nil {
		_, _ = io.Copy(io.Discard, rd)
	}
}

// conclude turns a process outcome into the terminal FSM event.
func (e *Engine) conclude(id string, out outcome) job.Event {
	if out.waitErr != nil {
		return failed(job.Fail(job.KindProcessFailed, "yt-dlp wait: %v", out.waitErr))
	}
	if out.code != 0 {
		if out.lastError != "" {
			return failed(&job.Failure{Kind: job.KindProcessFailed, Message: out.lastError})
		}
		return failed(job.Fail(job.KindProcessFailed, "yt-dlp exited with code %d", out.code))
	}

	res, err := e.finalize(id, out.metadata)
	if err != nil {
		return failed(job.Fail(job.KindFinalizeFailed, "metadata parse error: %v", err))
	}
	return job.Event{Kind: job.EventCompleted, Result: res}
}

func failed(f *job.Failure) job.Event {
	return job.Event{Kind: job.EventFailed, Failure: f}
}

// finalize reads the metadata blob, relocates the thumbnail and measures the
// produced file.
func (e *Engine) finalize(id, raw string) (job.Result, error) {
	if raw == "" {
		return job.Result{}, errors.New("no metadata in output")
	}
	var info InfoJSON
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return job.Result{}, err
	}

	file := info.Filename
	if file == "" {
		file = info.AltFilename
	}
	if file == "" {
		return job.Result{}, errors.New("metadata has no filename")
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(e.cfg.VideosDir, file)
	}

	st, err := os.Stat(file)
	if err != nil {
		return job.Result{}, fmt.Errorf("stat media file: %w", err)
	}

	return job.Result{
		FilePath:      e.relative(file),
		ThumbnailPath: e.relocateThumbnail(id, file),
		FileSize:      st.Size(),
		Duration:      int64(math.Round(info.Duration)),
		Description:   info.Description,
	}, nil
}

// relocateThumbnail moves the first thumbnail found next to file into
// thumbnails/{id}{ext}. Failures are logged and yield "".
func (e *Engine) relocateThumbnail(id, file string) string {
	base := strings.TrimSuffix(file, filepath.Ext(file))
	for _, ext := range thumbnailExts {
		src := base + ext
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dir := filepath.Join(e.cfg.VideosDir, thumbnailsDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("create thumbnails dir")
			return ""
		}
		dst := filepath.Join(dir, id+ext)
		if err := os.Rename(src, dst); err != nil {
			log.Warn().Err(err).Str("id", id).Str("src", src).Msg("move thumbnail")
			return ""
		}
		return e.relative(dst)
	}
	return ""
}

// relative maps p to a slash-separated path under the videos dir when
// possible.
func (e *Engine) relative(p string) string {
	rel, err := filepath.Rel(e.cfg.VideosDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

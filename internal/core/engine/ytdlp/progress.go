package ytdlp

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/viperadnan-git/tubestash/internal/core/job"
)

var progressRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%\s+of\s+~?\s*(\S+)\s+at\s+(\S+)\s+ETA\s+(\S+)`)

// parseProgress extracts a percent/speed/ETA triple from one output line.
func parseProgress(line string) (job.Progress, bool) {
	m := progressRe.FindStringSubmatch(line)
	if len(m) < 5 {
		return job.Progress{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return job.Progress{}, false
	}
	if pct > 100 {
		pct = 100
	}
	return job.Progress{
		Percent:    pct,
		Speed:      m[3],
		SpeedBytes: parseSpeed(m[3]),
		ETA:        m[4],
	}, true
}

func parseSpeed(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "Unknown" || s == "" {
		return 0
	}

	multiplier := float64(1)
	s = strings.ToUpper(s)
	switch {
	case strings.HasSuffix(s, "GIB/S"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GIB/S")
	case strings.HasSuffix(s, "MIB/S"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MIB/S")
	case strings.HasSuffix(s, "KIB/S"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KIB/S")
	case strings.HasSuffix(s, "B/S"):
		s = strings.TrimSuffix(s, "B/S")
	default:
		return 0
	}

	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(val * multiplier)
}

// throttle admits at most one sample per interval. Rejected samples are
// dropped, not deferred.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

func newThrottle(interval time.Duration, now func() time.Time) *throttle {
	return &throttle{interval: interval, now: now}
}

func (t *throttle) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.now()
	if !t.last.IsZero() && n.Sub(t.last) < t.interval {
		return false
	}
	t.last = n
	return true
}

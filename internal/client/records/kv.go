package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/viperadnan-git/tubestash/internal/core/job"
)

const (
	keySettings = "settings"
	keyLastPoll = "last_poll"
)

// GetValue decodes the JSON value stored under name into v. It returns
// ErrNotFound when nothing is stored.
func (s *Store) GetValue(ctx context.Context, name string, v any) error {
	var data string
	err := s.db.GetContext(ctx, &data, s.db.Rebind(`SELECT data FROM kv WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) SetValue(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	q := s.db.Rebind(`INSERT INTO kv (name, data) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET data = excluded.data`)
	if _, err := s.db.ExecContext(ctx, q, name, string(data)); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

func (s *Store) DeleteValue(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM kv WHERE name = ?`), name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

const (
	MinPollIntervalMinutes     = 5
	DefaultPollIntervalMinutes = 30
	DefaultMaxAgeDays          = 14
)

// Settings are the user-tunable knobs persisted under "settings".
type Settings struct {
	Concurrency         int `json:"concurrency"`
	PollIntervalMinutes int `json:"poll_interval_minutes"`
	MaxAgeDays          int `json:"max_age_days"`
}

func DefaultSettings() Settings {
	return Settings{
		Concurrency:         job.DefaultCeiling,
		PollIntervalMinutes: DefaultPollIntervalMinutes,
		MaxAgeDays:          DefaultMaxAgeDays,
	}
}

// Normalize fills unset fields from def and clamps the rest.
func (s Settings) Normalize(def Settings) Settings {
	if s.Concurrency == 0 {
		s.Concurrency = def.Concurrency
	}
	s.Concurrency = job.ClampCeiling(s.Concurrency)

	if s.PollIntervalMinutes == 0 {
		s.PollIntervalMinutes = def.PollIntervalMinutes
	}
	if s.PollIntervalMinutes < MinPollIntervalMinutes {
		s.PollIntervalMinutes = MinPollIntervalMinutes
	}

	if s.MaxAgeDays <= 0 {
		s.MaxAgeDays = def.MaxAgeDays
	}
	if s.MaxAgeDays <= 0 {
		s.MaxAgeDays = DefaultMaxAgeDays
	}
	return s
}

func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMinutes) * time.Minute
}

func (s *Store) Settings(ctx context.Context) (Settings, error) {
	var st Settings
	if err := s.GetValue(ctx, keySettings, &st); err != nil && !errors.Is(err, ErrNotFound) {
		return Settings{}, err
	}
	return st.Normalize(s.defaults), nil
}

// SaveSettings normalizes and stores st, returning what was stored.
func (s *Store) SaveSettings(ctx context.Context, st Settings) (Settings, error) {
	st = st.Normalize(s.defaults)
	if err := s.SetValue(ctx, keySettings, st); err != nil {
		return Settings{}, err
	}
	return st, nil
}

// PollResult records the outcome of the most recent feed sync.
type PollResult struct {
	At    time.Time `json:"at"`
	Found int       `json:"found"`
	Error string    `json:"error,omitempty"`
}

// LastPoll returns the last sync result, or nil if none was recorded.
func (s *Store) LastPoll(ctx context.Context) (*PollResult, error) {
	var p PollResult
	err := s.GetValue(ctx, keyLastPoll, &p)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SetLastPoll(ctx context.Context, p PollResult) error {
	return s.SetValue(ctx, keyLastPoll, p)
}

func (s *Store) ClearLastPoll(ctx context.Context) error {
	return s.DeleteValue(ctx, keyLastPoll)
}

// HasCompletedSync reports whether a sync has ever finished without error.
func (s *Store) HasCompletedSync(ctx context.Context) (bool, error) {
	p, err := s.LastPoll(ctx)
	if err != nil {
		return false, err
	}
	return p != nil && p.Error == "", nil
}

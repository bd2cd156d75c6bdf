package job

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_HappyPath(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	st, ok, err := Apply(nil, "abc", Event{Kind: EventSubmitted, At: at})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusQueued, st.Status)
	assert.Equal(t, "abc", st.ID)

	st, _, err = Apply(&st, "abc", Event{Kind: EventStarted, At: at})
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, st.Status)

	st, _, err = Apply(&st, "abc", Event{Kind: EventProgress, At: at, Progress: Progress{Percent: 42.5, Speed: "1.00MiB/s", ETA: "00:10"}})
	require.NoError(t, err)
	assert.Equal(t, 42.5, st.Percent)
	assert.Equal(t, "00:10", st.ETA)
	assert.Empty(t, st.FilePath, "derived fields must not appear while downloading")

	st, _, err = Apply(&st, "abc", Event{Kind: EventCompleted, At: at, Result: Result{FilePath: "channels/x/abc.mp4", FileSize: 10, Duration: 61}})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, st.Status)
	assert.Equal(t, float64(100), st.Percent)
	assert.Empty(t, st.Speed)
	assert.Equal(t, int64(61), st.Duration)
	require.NotNil(t, st.FinishedAt)
}

func TestApply_FailureCarriesKind(t *testing.T) {
	st := State{ID: "a", Status: StatusQueued}
	next, ok, err := Apply(&st, "a", Event{Kind: EventFailed, Failure: Fail(KindSpawnFailed, "spawn error: %s", "not found")})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusError, next.Status)
	assert.Equal(t, KindSpawnFailed, next.ErrorKind)
	assert.Equal(t, "spawn error: not found", next.Error)
}

func TestApply_Cancelled(t *testing.T) {
	st := State{ID: "a", Status: StatusDownloading}
	_, ok, err := Apply(&st, "a", Event{Kind: EventCancelled})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApply_RejectsIllegalTransitions(t *testing.T) {
	cases := []struct {
		name string
		cur  *State
		kind EventKind
	}{
		{"progress on unknown id", nil, EventProgress},
		{"completion on unknown id", nil, EventCompleted},
		{"completion while queued", &State{Status: StatusQueued}, EventCompleted},
		{"progress after done", &State{Status: StatusDone}, EventProgress},
		{"done after error", &State{Status: StatusError}, EventCompleted},
		{"cancel after done", &State{Status: StatusDone}, EventCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(tc.cur, "x", Event{Kind: tc.kind})
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		})
	}
}

func TestClampCeiling(t *testing.T) {
	assert.Equal(t, DefaultCeiling, ClampCeiling(0))
	assert.Equal(t, 1, ClampCeiling(1))
	assert.Equal(t, 4, ClampCeiling(9))
	assert.Equal(t, 3, ClampCeiling(3))
}

func TestKindOf(t *testing.T) {
	err := Fail(KindLostJob, MsgLostJob)
	assert.Equal(t, KindLostJob, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

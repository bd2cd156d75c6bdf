package job

import (
	"fmt"
	"time"
)

// EventKind drives the per-job state machine.
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Event is a single input to Apply. Only the field matching Kind is read.
type Event struct {
	Kind     EventKind
	At       time.Time
	Progress Progress
	Result   Result
	Failure  *Failure
}

// statusGone marks a job removed from the store.
const statusGone Status = ""

// transitions maps the current status ("" for an unknown id) and an event
// to the next status.
var transitions = map[Status]map[EventKind]Status{
	statusGone: {
		EventSubmitted: StatusQueued,
	},
	StatusQueued: {
		EventStarted:   StatusDownloading,
		EventFailed:    StatusError,
		EventCancelled: statusGone,
	},
	StatusDownloading: {
		EventProgress:  StatusDownloading,
		EventCompleted: StatusDone,
		EventFailed:    StatusError,
		EventCancelled: statusGone,
	},
	StatusDone:  {},
	StatusError: {},
}

// Next returns the status reached from `from` on event kind, or
// ErrInvalidTransition.
func Next(from Status, kind EventKind) (Status, error) {
	to, ok := transitions[from][kind]
	if !ok {
		return from, fmt.Errorf("%w: %q on %s", ErrInvalidTransition, from, kind)
	}
	return to, nil
}

// Apply returns the state after ev. The second result is false when the
// job leaves the store (cancellation).
func Apply(cur *State, id string, ev Event) (State, bool, error) {
	from := statusGone
	if cur != nil {
		from = cur.Status
	}
	to, err := Next(from, ev.Kind)
	if err != nil {
		return State{}, cur != nil, err
	}
	if to == statusGone {
		return State{}, false, nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	var next State
	if cur != nil {
		next = *cur
	}
	next.ID = id
	next.Status = to
	next.UpdatedAt = at

	switch ev.Kind {
	case EventStarted:
		next.Percent = 0
	case EventProgress:
		next.Percent = ev.Progress.Percent
		next.Speed = ev.Progress.Speed
		next.SpeedBytes = ev.Progress.SpeedBytes
		next.ETA = ev.Progress.ETA
	case EventCompleted:
		next.Percent = 100
		next.Speed, next.SpeedBytes, next.ETA = "", 0, ""
		next.FilePath = ev.Result.FilePath
		next.ThumbnailPath = ev.Result.ThumbnailPath
		next.FileSize = ev.Result.FileSize
		next.Duration = ev.Result.Duration
		next.Description = ev.Result.Description
		next.FinishedAt = &at
	case EventFailed:
		next.Speed, next.SpeedBytes, next.ETA = "", 0, ""
		if ev.Failure != nil {
			next.Error = ev.Failure.Message
			next.ErrorKind = ev.Failure.Kind
		}
		next.FinishedAt = &at
	}
	return next, true, nil
}

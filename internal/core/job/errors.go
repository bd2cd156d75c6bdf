package job

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a job did not reach done.
type ErrorKind string

const (
	KindSubmissionRejected ErrorKind = "submission_rejected"
	KindSpawnFailed        ErrorKind = "spawn_failed"
	KindProcessFailed      ErrorKind = "process_failed"
	KindFinalizeFailed     ErrorKind = "finalize_failed"
	KindLostJob            ErrorKind = "lost_job"
	KindCancelled          ErrorKind = "cancelled"
)

// Messages surfaced to records for kinds without a dynamic diagnostic.
const (
	MsgLostJob      = "lost connection to job"
	MsgCancelled    = "Cancelled"
	MsgNotConnected = "worker not connected"
)

var ErrInvalidTransition = errors.New("invalid job transition")

// Failure is a classified, human-readable job error.
type Failure struct {
	Kind    ErrorKind
	Message string
}

func (f *Failure) Error() string { return f.Message }

func Fail(kind ErrorKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or "" when err is not a Failure.
func KindOf(err error) ErrorKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

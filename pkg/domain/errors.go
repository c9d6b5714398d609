package domain

import (
	"errors"
	"strings"
)

// ErrProcessExists is returned when a process name is registered while already in flight.
var ErrProcessExists = errors.New("process already registered")

// ErrProcessNotFound is returned when a process name is not in flight.
var ErrProcessNotFound = errors.New("process not found")

// ErrStepNotFound is returned when a step key cannot be resolved inside a process tree.
var ErrStepNotFound = errors.New("process step not found")

// ErrSnapshotNotFound is returned by snapshot stores when no snapshot exists for a name.
var ErrSnapshotNotFound = errors.New("process snapshot not found")

// ErrProcessAbandoned is recorded on processes failed by the reaper.
var ErrProcessAbandoned = errors.New("process abandoned: no finish before deadline")

// FormatError renders an error and its wrapped causes, one per line.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(err.Error())
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		sb.WriteString("\nCaused by: ")
		sb.WriteString(cause.Error())
	}
	return sb.String()
}

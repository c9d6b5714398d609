package domain

// Status is the lifecycle state of a process or a step.
type Status string

const (
	StatusInitializing Status = "INITIALIZING" // Registered, no step started yet
	StatusRunning      Status = "RUNNING"      // At least one step registered
	StatusFinished     Status = "FINISHED"     // Terminal, success
	StatusFailed       Status = "FAILED"       // Terminal, failure
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the status moving forward.
// Re-entering RUNNING is allowed so that every step registration can mark its process running.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusRunning:
		return s == StatusInitializing || s == StatusRunning
	case StatusFinished, StatusFailed:
		return true
	default:
		return false
	}
}

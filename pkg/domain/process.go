package domain

import (
	"encoding/json"
	"time"
)

// Process is the root of a tracked operation.
type Process struct {
	Key       string      `json:"key"`
	Type      ProcessType `json:"type"`
	Title     string      `json:"title"`
	Status    Status      `json:"status"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime"`
	// Time is the elapsed time in milliseconds, set on finish.
	Time     int64     `json:"time"`
	Log      LogBuffer `json:"log"`
	Children []*Step   `json:"children"`

	// LastUpdateStep points at the most recently logged step of the tree. It does not own the step.
	LastUpdateStep *Step `json:"lastUpdateStep,omitempty"`
}

// Step is a unit of work inside a Process. Steps form a tree through Children.
type Step struct {
	Key       string    `json:"key"`
	Type      StepType  `json:"type"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Time      int64     `json:"time"`
	Log       LogBuffer `json:"log"`
	Children  []*Step   `json:"children"`
}

// MarshalJSON encodes the process with LastUpdateStep reduced to a copy without children,
// keeping the document a tree.
func (p Process) MarshalJSON() ([]byte, error) {
	type plain Process
	out := plain(p)
	if p.LastUpdateStep != nil {
		last := *p.LastUpdateStep
		last.Children = []*Step{}
		out.LastUpdateStep = &last
	}
	return json.Marshal(out)
}

// NewProcess creates a process in the INITIALIZING state.
func NewProcess(key string, typ ProcessType, start time.Time) *Process {
	return &Process{
		Key:       key,
		Type:      typ,
		Title:     typ.Title(),
		Status:    StatusInitializing,
		StartTime: start,
		Children:  []*Step{},
	}
}

// NewStep creates a step in the RUNNING state.
func NewStep(key string, typ StepType, start time.Time) *Step {
	return &Step{
		Key:       key,
		Type:      typ,
		Title:     typ.Title(),
		Status:    StatusRunning,
		StartTime: start,
		Children:  []*Step{},
	}
}

// Finish moves the process to a terminal status and records its timing.
// It returns false when the process is already terminal or status is not terminal.
func (p *Process) Finish(status Status, end time.Time) bool {
	if !status.IsTerminal() || !p.Status.CanTransitionTo(status) {
		return false
	}
	p.Status = status
	p.EndTime = end
	p.Time = end.Sub(p.StartTime).Milliseconds()
	return true
}

// Finish moves the step to a terminal status and records its timing.
func (s *Step) Finish(status Status, end time.Time) bool {
	if !status.IsTerminal() || !s.Status.CanTransitionTo(status) {
		return false
	}
	s.Status = status
	s.EndTime = end
	s.Time = end.Sub(s.StartTime).Milliseconds()
	return true
}

// Clone returns a deep copy of the process. LastUpdateStep in the copy points into the copied tree.
func (p *Process) Clone() *Process {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Log = p.Log.clone()
	cp.Children = cloneSteps(p.Children)
	cp.LastUpdateStep = nil
	if p.LastUpdateStep != nil {
		cp.LastUpdateStep = FindStep(cp.Children, p.LastUpdateStep.Key)
		if cp.LastUpdateStep == nil {
			cp.LastUpdateStep = p.LastUpdateStep.Clone()
		}
	}
	return &cp
}

// Clone returns a deep copy of the step and its subtree.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Log = s.Log.clone()
	cp.Children = cloneSteps(s.Children)
	return &cp
}

func cloneSteps(steps []*Step) []*Step {
	out := make([]*Step, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}

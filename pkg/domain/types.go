package domain

import "strings"

// ProcessType categorises a process. It is also the prefix of process names built by tracing requests.
type ProcessType string

const (
	ProcessSubmit  ProcessType = "SUBMIT"
	ProcessExecute ProcessType = "EXECUTE"
	ProcessExplain ProcessType = "EXPLAIN"
	ProcessBuild   ProcessType = "BUILD"
	ProcessUnknown ProcessType = "UNKNOWN"
)

var processTitles = map[ProcessType]string{
	ProcessSubmit:  "Job Submission",
	ProcessExecute: "Job Execution",
	ProcessExplain: "Statement Explain",
	ProcessBuild:   "Artifact Build",
	ProcessUnknown: "Unknown Process",
}

// Title returns the human readable label of the process type.
func (t ProcessType) Title() string {
	if title, ok := processTitles[t]; ok {
		return title
	}
	return humanize(string(t))
}

// StepType categorises a step.
type StepType string

const (
	StepCheck       StepType = "CHECK"
	StepCompile     StepType = "COMPILE"
	StepBuildConfig StepType = "BUILD_CONFIG"
	StepExecute     StepType = "EXECUTE"
	StepSubmit      StepType = "SUBMIT"
	StepUnknown     StepType = "UNKNOWN"
)

var stepTitles = map[StepType]string{
	StepCheck:       "Pre-submission check",
	StepCompile:     "Compile statements",
	StepBuildConfig: "Build configuration",
	StepExecute:     "Execute",
	StepSubmit:      "Submit to cluster",
	StepUnknown:     "Unknown step",
}

// Title returns the human readable label of the step type.
func (t StepType) Title() string {
	if title, ok := stepTitles[t]; ok {
		return title
	}
	return humanize(string(t))
}

// humanize turns "SOME_TYPE" into "Some type".
func humanize(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ToLower(strings.ReplaceAll(raw, "_", " "))
	return strings.ToUpper(s[:1]) + s[1:]
}

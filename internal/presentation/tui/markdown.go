package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/proctrace/pkg/domain"
)

// ProcessMarkdown renders a process as a markdown document: a header with status and timing,
// the process log, then one section per step, nested by depth.
func ProcessMarkdown(name string, p *domain.Process) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", name)
	fmt.Fprintf(&sb, "**%s** · `%s` · started %s", p.Title, p.Status, formatTime(p.StartTime))
	if p.Status.IsTerminal() {
		fmt.Fprintf(&sb, " · took %s", time.Duration(p.Time)*time.Millisecond)
	}
	sb.WriteString("\n\n")

	writeLog(&sb, p.Log)

	if len(p.Children) == 0 {
		return sb.String()
	}
	sb.WriteString("## Steps\n\n")
	domain.Walk(p.Children, func(step *domain.Step, depth int) bool {
		level := depth + 3
		if level > 6 {
			level = 6
		}
		fmt.Fprintf(&sb, "%s %s `%s`", strings.Repeat("#", level), step.Title, step.Status)
		if step.Status.IsTerminal() {
			fmt.Fprintf(&sb, " (%s)", time.Duration(step.Time)*time.Millisecond)
		}
		sb.WriteString("\n\n")
		writeLog(&sb, step.Log)
		return true
	})
	return sb.String()
}

func writeLog(sb *strings.Builder, log domain.LogBuffer) {
	if log.Len() == 0 {
		return
	}
	sb.WriteString("```text\n")
	sb.WriteString(log.String())
	if !strings.HasSuffix(log.String(), "\n") {
		sb.WriteByte('\n')
	}
	sb.WriteString("```\n\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/proctrace/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of a process step tree.
// Shapes:
// - Process: ((Circle))
// - Step with children: [[Subroutine]]
// - Leaf step: [Rectangle]
// Nodes are styled by status: running, finished, failed.
func GenerateMermaid(name string, p *domain.Process) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	root := "process"
	sb.WriteString(fmt.Sprintf("    %s((\"%s\"))\n", root, escapeLabel(name)))
	styles := map[string][]string{}
	addStyle(styles, p.Status, root)

	var write func(parent string, steps []*domain.Step)
	write = func(parent string, steps []*domain.Step) {
		for _, step := range steps {
			id := "s_" + sanitizeMermaidID(step.Key)
			opener, closer := "[", "]"
			if len(step.Children) > 0 {
				opener, closer = "[[", "]]"
			}
			label := step.Title
			if label == "" {
				label = string(step.Type)
			}
			if step.Time > 0 {
				label = fmt.Sprintf("%s <br/> %dms", escapeLabel(label), step.Time)
			} else {
				label = escapeLabel(label)
			}
			sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", id, opener, label, closer))
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", parent, id))
			addStyle(styles, step.Status, id)
			write(id, step.Children)
		}
	}
	write(root, p.Children)

	sb.WriteString("\n    %% Status Styles\n")
	sb.WriteString("    classDef running fill:#fff8e1,stroke:#f9a825,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef finished fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef failed fill:#ffebee,stroke:#c62828,stroke-width:4px,color:#000;\n")
	for _, class := range []string{"running", "finished", "failed"} {
		if ids := styles[class]; len(ids) > 0 {
			sb.WriteString(fmt.Sprintf("    class %s %s;\n", strings.Join(ids, ","), class))
		}
	}
	return sb.String()
}

func addStyle(styles map[string][]string, status domain.Status, id string) {
	switch status {
	case domain.StatusInitializing, domain.StatusRunning:
		styles["running"] = append(styles["running"], id)
	case domain.StatusFinished:
		styles["finished"] = append(styles["finished"], id)
	case domain.StatusFailed:
		styles["failed"] = append(styles["failed"], id)
	}
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}

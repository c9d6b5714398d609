package domain

import (
	"fmt"
	"testing"
	"time"
)

// buildTree creates a tree of the given depth where every node has fanout children.
func buildTree(depth, fanout int, prefix string) []*Step {
	if depth == 0 {
		return []*Step{}
	}
	steps := make([]*Step, 0, fanout)
	for i := 0; i < fanout; i++ {
		key := fmt.Sprintf("%s.%d", prefix, i)
		s := NewStep(key, StepExecute, time.Time{})
		s.Children = buildTree(depth-1, fanout, key)
		steps = append(steps, s)
	}
	return steps
}

func TestFindStep(t *testing.T) {
	forest := buildTree(4, 3, "s")

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"top level first", "s.0", true},
		{"top level last", "s.2", true},
		{"nested", "s.1.2", true},
		{"deepest leaf", "s.2.2.2.2", true},
		{"cousin of deep leaf", "s.0.2.1.0", true},
		{"missing", "s.3", false},
		{"empty key", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindStep(forest, tt.key)
			if tt.want {
				if got == nil {
					t.Fatalf("FindStep(%q) = nil, want a step", tt.key)
				}
				if got.Key != tt.key {
					t.Errorf("FindStep(%q) returned key %q", tt.key, got.Key)
				}
			} else if got != nil {
				t.Errorf("FindStep(%q) = %q, want nil", tt.key, got.Key)
			}
		})
	}
}

func TestFindStep_PreOrder(t *testing.T) {
	// Duplicate keys only exist in corrupted trees; the first one in pre-order wins.
	parent := NewStep("dup", StepCompile, time.Time{})
	child := NewStep("dup", StepExecute, time.Time{})
	parent.Children = append(parent.Children, child)

	if got := FindStep([]*Step{parent}, "dup"); got != parent {
		t.Errorf("expected the parent to be found before its child")
	}
}

func TestWalk(t *testing.T) {
	forest := buildTree(3, 2, "s")

	var visited []string
	maxDepth := 0
	Walk(forest, func(step *Step, depth int) bool {
		visited = append(visited, step.Key)
		if depth > maxDepth {
			maxDepth = depth
		}
		return true
	})

	if len(visited) != 14 {
		t.Errorf("expected 14 steps, got %d", len(visited))
	}
	if visited[0] != "s.0" || visited[1] != "s.0.0" || visited[2] != "s.0.0.0" {
		t.Errorf("unexpected visiting order: %v", visited[:3])
	}
	if maxDepth != 2 {
		t.Errorf("expected max depth 2, got %d", maxDepth)
	}

	count := 0
	Walk(forest, func(step *Step, depth int) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Errorf("expected walk to stop after 3 visits, got %d", count)
	}
}

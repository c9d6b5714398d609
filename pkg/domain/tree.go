package domain

// FindStep searches the forest depth-first, visiting each node before its children,
// and returns the first step whose key matches. It returns nil when nothing matches.
func FindStep(children []*Step, key string) *Step {
	if key == "" {
		return nil
	}
	for _, step := range children {
		if step.Key == key {
			return step
		}
		if found := FindStep(step.Children, key); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits every step of the forest depth-first with its nesting depth.
// Returning false from fn stops the walk.
func Walk(children []*Step, fn func(step *Step, depth int) bool) {
	walk(children, 0, fn)
}

func walk(children []*Step, depth int, fn func(*Step, int) bool) bool {
	for _, step := range children {
		if !fn(step, depth) {
			return false
		}
		if !walk(step.Children, depth+1, fn) {
			return false
		}
	}
	return true
}

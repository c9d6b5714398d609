package ports

// Executor runs tasks asynchronously.
type Executor interface {
	// Submit schedules task and returns immediately. It reports false when the task was rejected.
	Submit(task func()) bool
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(task func()) bool

// Submit calls f(task).
func (f ExecutorFunc) Submit(task func()) bool {
	return f(task)
}

package tracing

import "context"

type processKey struct{}
type stepKey struct{}

// WithProcess returns a context carrying the name of the current process.
func WithProcess(ctx context.Context, processName string) context.Context {
	return context.WithValue(ctx, processKey{}, processName)
}

// ProcessFrom returns the process name carried by ctx.
func ProcessFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(processKey{}).(string)
	return name, ok && name != ""
}

// WithStep returns a context carrying the key of the current step.
func WithStep(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, stepKey{}, key)
}

// StepKeyFrom returns the step key carried by ctx, or "" at the top level.
func StepKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(stepKey{}).(string)
	return key
}

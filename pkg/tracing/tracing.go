package tracing

import (
	"context"
	"fmt"

	"github.com/aretw0/proctrace/pkg/domain"
)

// Recorder is the registry surface used by the helpers. *registry.Registry implements it.
type Recorder interface {
	RegisterProcess(ctx context.Context, typ domain.ProcessType, name string) error
	RegisterStep(ctx context.Context, typ domain.StepType, processName, parentKey string) (*domain.Step, error)
	AppendLog(ctx context.Context, processName, stepKey, line string, recordOnProcess bool)
	FinishProcess(ctx context.Context, processName string, status domain.Status, cause error)
	FinishStep(ctx context.Context, processName string, step *domain.Step, status domain.Status, cause error)
}

// Request identifies the operation a process traces.
type Request struct {
	Type domain.ProcessType
	ID   string
}

// Name returns the process name, "<type>/<id>".
func (r Request) Name() string {
	return string(r.Type) + "/" + r.ID
}

// Run registers a process for req, calls fn with a context carrying the process name,
// and finishes the process with FINISHED when fn returns nil and FAILED otherwise.
// A panic in fn fails the process before it propagates.
func Run(ctx context.Context, rec Recorder, req Request, fn func(ctx context.Context) error) (err error) {
	name := req.Name()
	if err := rec.RegisterProcess(ctx, req.Type, name); err != nil {
		return fmt.Errorf("start process %s: %w", name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			rec.FinishProcess(ctx, name, domain.StatusFailed, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		finish(ctx, rec, name, err)
	}()

	return fn(WithProcess(ctx, name))
}

func finish(ctx context.Context, rec Recorder, name string, err error) {
	if err != nil {
		rec.FinishProcess(ctx, name, domain.StatusFailed, err)
		return
	}
	rec.FinishProcess(ctx, name, domain.StatusFinished, nil)
}

// Step runs fn as a step of the process carried by ctx, nested under the current step if any.
// Without a process in ctx fn simply runs. A step that cannot be registered does not stop fn.
func Step(ctx context.Context, rec Recorder, typ domain.StepType, fn func(ctx context.Context) error) (err error) {
	name, ok := ProcessFrom(ctx)
	if !ok {
		return fn(ctx)
	}

	step, regErr := rec.RegisterStep(ctx, typ, name, StepKeyFrom(ctx))
	if regErr != nil {
		return fn(ctx)
	}
	rec.AppendLog(ctx, name, step.Key, fmt.Sprintf("Start Process Step:%s", typ), true)

	defer func() {
		if r := recover(); r != nil {
			rec.FinishStep(ctx, name, step, domain.StatusFailed, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		if err != nil {
			rec.FinishStep(ctx, name, step, domain.StatusFailed, err)
			return
		}
		rec.FinishStep(ctx, name, step, domain.StatusFinished, nil)
	}()

	return fn(WithStep(ctx, step.Key))
}

// Log appends line to the current step, and to the process log, of the process carried by ctx.
// It does nothing without a process in ctx.
func Log(ctx context.Context, rec Recorder, line string) {
	name, ok := ProcessFrom(ctx)
	if !ok {
		return
	}
	rec.AppendLog(ctx, name, StepKeyFrom(ctx), line, true)
}

// Logf is Log with formatting.
func Logf(ctx context.Context, rec Recorder, format string, args ...any) {
	Log(ctx, rec, fmt.Sprintf(format, args...))
}

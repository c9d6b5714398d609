// Package registry tracks in-flight processes as step trees.
//
// Every mutation of a tree happens under that process's own lock and schedules a broadcast
// of a copy of the whole process. Finishing a process persists its snapshot and evicts it;
// lookups then fall back to the snapshot store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/proctrace/internal/logging"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/aretw0/proctrace/pkg/metrics"
	"github.com/aretw0/proctrace/pkg/ports"
	"github.com/google/uuid"
)

// entry is the in-memory state of one in-flight process.
// mu guards every field of the process tree, including nested steps.
type entry struct {
	mu      sync.RWMutex
	process *domain.Process
	closed  bool             // set once the snapshot is written; the tree is then immutable
	unlock  ports.UnlockFunc // releases the cross-replica name claim, if any

	// publishing is set while a broadcast of the process is queued and has not yet copied it.
	publishing atomic.Bool
}

// Registry tracks in-flight processes by name.
type Registry struct {
	store       ports.SnapshotStore
	broadcaster ports.Broadcaster
	executor    ports.Executor
	locker      ports.DistributedLocker
	claimTTL    time.Duration
	claimWait   time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	newKey      func() string

	mu    sync.RWMutex
	procs map[string]*entry
}

// Option configures the Registry.
type Option func(*Registry)

// WithBroadcaster publishes process snapshots after every log mutation.
func WithBroadcaster(b ports.Broadcaster) Option {
	return func(r *Registry) {
		r.broadcaster = b
	}
}

// WithExecutor sets where broadcasts run. Without it each broadcast gets its own goroutine,
// which gives up ordering between broadcasts.
func WithExecutor(e ports.Executor) Option {
	return func(r *Registry) {
		r.executor = e
	}
}

// WithLocker claims process names across replicas for ttl while they are in flight.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(r *Registry) {
		r.locker = locker
		r.claimTTL = ttl
	}
}

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics records registry activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a Registry persisting finished processes to store.
func New(store ports.SnapshotStore, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		claimTTL:  time.Hour,
		claimWait: 250 * time.Millisecond,
		logger:    logging.NewNop(),
		now:       time.Now,
		newKey:    uuid.NewString,
		procs:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.executor == nil {
		r.executor = ports.ExecutorFunc(func(task func()) bool {
			go task()
			return true
		})
	}
	return r
}

func (r *Registry) lookup(processName string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.procs[processName]
}

// timestamp drops the monotonic reading so live values compare equal to decoded snapshots.
func (r *Registry) timestamp() time.Time {
	return r.now().UTC().Round(0)
}

// RegisterProcess starts tracking a process under name.
// It returns domain.ErrProcessExists when the name is already in flight.
func (r *Registry) RegisterProcess(ctx context.Context, typ domain.ProcessType, name string) error {
	if name == "" {
		return fmt.Errorf("process name cannot be empty")
	}
	if r.lookup(name) != nil {
		return fmt.Errorf("%w: %s", domain.ErrProcessExists, name)
	}

	var unlock ports.UnlockFunc
	if r.locker != nil {
		claimCtx, cancel := context.WithTimeout(ctx, r.claimWait)
		var err error
		unlock, err = r.locker.Lock(claimCtx, "process:"+name, r.claimTTL)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %s is claimed elsewhere: %v", domain.ErrProcessExists, name, err)
		}
	}

	e := &entry{
		process: domain.NewProcess(r.newKey(), typ, r.timestamp()),
		unlock:  unlock,
	}

	r.mu.Lock()
	if _, exists := r.procs[name]; exists {
		r.mu.Unlock()
		r.release(ctx, name, unlock)
		return fmt.Errorf("%w: %s", domain.ErrProcessExists, name)
	}
	r.procs[name] = e
	r.mu.Unlock()

	r.metrics.ProcessRegistered()
	r.logger.Info("Process registered", "process", name, "type", typ, "key", e.process.Key)

	r.AppendLog(ctx, name, "", "Start Process:"+name, true)
	return nil
}

// RegisterStep adds a running step to a process. An empty parentKey attaches the step at the
// top level. A parentKey that cannot be resolved is logged and the step is attached at the top
// level too. The returned step is a detached copy; pass it back to FinishStep.
func (r *Registry) RegisterStep(ctx context.Context, typ domain.StepType, processName, parentKey string) (*domain.Step, error) {
	e := r.lookup(processName)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProcessNotFound, processName)
	}

	step := domain.NewStep(r.newKey(), typ, r.timestamp())

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("%w: %s already finished", domain.ErrProcessNotFound, processName)
	}
	if e.process.Status.CanTransitionTo(domain.StatusRunning) {
		e.process.Status = domain.StatusRunning
	}

	if parentKey == "" {
		e.process.Children = append(e.process.Children, step)
	} else if parent := domain.FindStep(e.process.Children, parentKey); parent != nil {
		parent.Children = append(parent.Children, step)
	} else {
		r.logger.Error("Parent step not found, attaching step at top level",
			"process", processName,
			"parent", parentKey,
			"step_type", typ,
		)
		e.process.Children = append(e.process.Children, step)
	}

	r.metrics.StepRegistered()
	return step.Clone(), nil
}

// AppendLog appends line to the log of a step (when stepKey is set) and to the log of the
// process (when recordOnProcess is set), then broadcasts the process. Unknown processes and
// steps are logged and otherwise ignored.
func (r *Registry) AppendLog(ctx context.Context, processName, stepKey, line string, recordOnProcess bool) {
	e := r.lookup(processName)
	if e == nil {
		r.logger.Debug("Process does not exist, log line abandoned", "process", processName)
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		r.logger.Debug("Process already finished, log line abandoned", "process", processName)
		return
	}
	r.appendLocked(e, processName, stepKey, line, recordOnProcess)
	e.mu.Unlock()

	r.publish(processName, e)
}

func (r *Registry) appendLocked(e *entry, processName, stepKey, line string, recordOnProcess bool) {
	if recordOnProcess {
		e.process.Log.Append(line)
	}
	if stepKey == "" {
		return
	}
	step := domain.FindStep(e.process.Children, stepKey)
	if step == nil {
		r.logger.Warn("Process step not found", "process", processName, "step", stepKey)
		return
	}
	step.Log.Append(line)
	e.process.LastUpdateStep = step
}

// publish schedules a broadcast of the process unless one is already queued. The task copies
// the process when it runs. Callers must not hold the entry lock.
func (r *Registry) publish(processName string, e *entry) {
	if r.broadcaster == nil {
		return
	}
	if !e.publishing.CompareAndSwap(false, true) {
		return
	}
	topic := domain.Topic(processName)
	ok := r.executor.Submit(func() {
		e.publishing.Store(false)
		e.mu.RLock()
		snapshot := e.process.Clone()
		e.mu.RUnlock()
		r.broadcaster.Broadcast(topic, snapshot)
	})
	if !ok {
		e.publishing.Store(false)
		r.logger.Warn("Broadcast dropped", "process", processName, "topic", topic)
	}
}

// FinishProcess moves a process to a terminal status, persists its snapshot and stops
// tracking it in memory. Unknown or already finished processes are ignored.
// A snapshot that cannot be persisted is logged; the process is evicted regardless.
func (r *Registry) FinishProcess(ctx context.Context, processName string, status domain.Status, cause error) {
	if !status.IsTerminal() {
		r.logger.Warn("Refusing to finish process with non-terminal status", "process", processName, "status", status)
		return
	}
	e := r.lookup(processName)
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.closed || !e.process.Finish(status, r.timestamp()) {
		e.mu.Unlock()
		r.logger.Debug("Process already finished", "process", processName)
		return
	}
	if cause != nil {
		e.process.Log.Append(domain.FormatError(cause))
	}
	e.process.Log.Append(fmt.Sprintf("Process %s exit with status:%s", processName, status))

	snapshot := e.process.Clone()
	if err := r.store.Save(ctx, processName, snapshot); err != nil {
		r.metrics.SnapshotFailed()
		r.logger.Error("Failed to persist process snapshot", "process", processName, "err", err)
	}
	e.closed = true
	e.mu.Unlock()

	r.publish(processName, e)

	r.mu.Lock()
	if r.procs[processName] == e {
		delete(r.procs, processName)
	}
	r.mu.Unlock()

	r.release(ctx, processName, e.unlock)
	r.metrics.ProcessFinished(string(snapshot.Type), string(status), float64(snapshot.Time)/1000)
	r.logger.Info("Process finished",
		"process", processName,
		"status", status,
		"elapsed_ms", snapshot.Time,
	)
}

// FinishStep moves a step to a terminal status. cause, when set, is recorded on the step log
// only; the exit line is recorded on both the step and the process. The status and timing of
// step are updated to match the tracked step.
func (r *Registry) FinishStep(ctx context.Context, processName string, step *domain.Step, status domain.Status, cause error) {
	if step == nil {
		return
	}
	if !status.IsTerminal() {
		r.logger.Warn("Refusing to finish step with non-terminal status", "process", processName, "step", step.Key, "status", status)
		return
	}
	e := r.lookup(processName)
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	node := domain.FindStep(e.process.Children, step.Key)
	if node == nil {
		e.mu.Unlock()
		r.logger.Warn("Process step not found", "process", processName, "step", step.Key)
		return
	}
	if !node.Finish(status, r.timestamp()) {
		e.mu.Unlock()
		r.logger.Debug("Process step already finished", "process", processName, "step", step.Key)
		return
	}
	step.Status, step.EndTime, step.Time = node.Status, node.EndTime, node.Time

	if cause != nil {
		r.appendLocked(e, processName, node.Key, domain.FormatError(cause), false)
	}
	line := fmt.Sprintf("Process Step %s exit with status:%s", node.Type, status)
	r.appendLocked(e, processName, node.Key, line, true)
	e.mu.Unlock()

	r.publish(processName, e)
}

// GetProcess returns a copy of the in-flight process, or its durable snapshot once finished.
// Missing and unreadable snapshots both report false.
func (r *Registry) GetProcess(ctx context.Context, processName string) (*domain.Process, bool) {
	if e := r.lookup(processName); e != nil {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.process.Clone(), true
	}

	process, err := r.store.Load(ctx, processName)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			r.logger.Debug("Process not found", "process", processName)
		} else {
			r.logger.Warn("Failed to load process snapshot", "process", processName, "err", err)
		}
		return nil, false
	}
	return process, true
}

// List returns copies of all in-flight processes, oldest first.
func (r *Registry) List() []*domain.Process {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.procs))
	for _, e := range r.procs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*domain.Process, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		if !e.closed {
			out = append(out, e.process.Clone())
		}
		e.mu.RUnlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].Key < out[j].Key
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Names returns the names of all in-flight processes, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) release(ctx context.Context, processName string, unlock ports.UnlockFunc) {
	if unlock == nil {
		return
	}
	if err := unlock(ctx); err != nil {
		r.logger.Warn("Failed to release process name claim (will expire via TTL)",
			"process", processName,
			"err", err,
		)
	}
}

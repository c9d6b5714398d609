package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/proctrace/internal/testutils"
	"github.com/aretw0/proctrace/pkg/adapters/memory"
	redisstore "github.com/aretw0/proctrace/pkg/adapters/redis"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/aretw0/proctrace/pkg/ports"
	"github.com/aretw0/proctrace/pkg/registry"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts snapshot writes and can be told to fail them.
type countingStore struct {
	*memory.Store
	mu    sync.Mutex
	saves int
	fail  error
}

func (s *countingStore) Save(ctx context.Context, name string, p *domain.Process) error {
	s.mu.Lock()
	s.saves++
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.Store.Save(ctx, name, p)
}

func newRegistry(t *testing.T, opts ...registry.Option) (*registry.Registry, *countingStore, *testutils.Broadcasts) {
	t.Helper()
	store := &countingStore{Store: memory.NewStore()}
	rec := &testutils.Broadcasts{}
	base := []registry.Option{
		registry.WithBroadcaster(rec),
		registry.WithExecutor(testutils.Inline),
	}
	return registry.New(store, append(base, opts...)...), store, rec
}

func TestRegistry_SubmitScenario(t *testing.T) {
	ctx := context.Background()
	r, store, rec := newRegistry(t)

	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/42"))
	step, err := r.RegisterStep(ctx, domain.StepCompile, "SUBMIT/42", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, step.Status)

	r.AppendLog(ctx, "SUBMIT/42", step.Key, "compiling", true)
	r.FinishStep(ctx, "SUBMIT/42", step, domain.StatusFinished, nil)
	assert.Equal(t, domain.StatusFinished, step.Status)

	r.FinishProcess(ctx, "SUBMIT/42", domain.StatusFinished, nil)

	snapshot, err := store.Load(ctx, "SUBMIT/42")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, snapshot.Status)
	assert.Equal(t, []string{
		"Start Process:SUBMIT/42",
		"compiling",
		"Process Step COMPILE exit with status:FINISHED",
		"Process SUBMIT/42 exit with status:FINISHED",
	}, snapshot.Log.Lines())

	require.Len(t, snapshot.Children, 1)
	compile := snapshot.Children[0]
	assert.Equal(t, domain.StatusFinished, compile.Status)
	assert.Equal(t, []string{
		"compiling",
		"Process Step COMPILE exit with status:FINISHED",
	}, compile.Log.Lines())
	require.NotNil(t, snapshot.LastUpdateStep)
	assert.Equal(t, compile.Key, snapshot.LastUpdateStep.Key)

	// Evicted from memory, served from the snapshot.
	assert.Empty(t, r.List())
	got, ok := r.GetProcess(ctx, "SUBMIT/42")
	require.True(t, ok)
	assert.Equal(t, snapshot, got)

	// Every broadcast went to the process topic and the last one is the final state.
	for _, topic := range rec.Topics() {
		assert.Equal(t, "PROCESS_CONSOLE/SUBMIT/42", topic)
	}
	assert.Equal(t, snapshot, rec.Last())
}

func TestRegistry_DuplicateProcess(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t)

	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/1"))
	err := r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/1")
	assert.ErrorIs(t, err, domain.ErrProcessExists)

	// Once finished, the name can be reused.
	r.FinishProcess(ctx, "SUBMIT/1", domain.StatusFinished, nil)
	assert.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/1"))
}

func TestRegistry_EmptyName(t *testing.T) {
	r, _, _ := newRegistry(t)
	assert.Error(t, r.RegisterProcess(context.Background(), domain.ProcessSubmit, ""))
}

func TestRegistry_UnknownProcess(t *testing.T) {
	ctx := context.Background()
	r, store, rec := newRegistry(t)

	_, err := r.RegisterStep(ctx, domain.StepCheck, "missing", "")
	assert.ErrorIs(t, err, domain.ErrProcessNotFound)

	assert.NotPanics(t, func() {
		r.AppendLog(ctx, "missing", "", "line", true)
		r.FinishStep(ctx, "missing", &domain.Step{Key: "x"}, domain.StatusFinished, nil)
		r.FinishProcess(ctx, "missing", domain.StatusFailed, errors.New("boom"))
	})
	assert.Zero(t, rec.Count())
	assert.Zero(t, store.saves)

	_, ok := r.GetProcess(ctx, "missing")
	assert.False(t, ok)
}

func TestRegistry_NestedSteps(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t)
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessExecute, "EXECUTE/9"))

	outer, err := r.RegisterStep(ctx, domain.StepExecute, "EXECUTE/9", "")
	require.NoError(t, err)
	inner, err := r.RegisterStep(ctx, domain.StepBuildConfig, "EXECUTE/9", outer.Key)
	require.NoError(t, err)
	r.AppendLog(ctx, "EXECUTE/9", inner.Key, "nested", false)

	p, ok := r.GetProcess(ctx, "EXECUTE/9")
	require.True(t, ok)
	assert.Equal(t, domain.StatusRunning, p.Status)
	require.Len(t, p.Children, 1)
	require.Len(t, p.Children[0].Children, 1)
	assert.Equal(t, inner.Key, p.Children[0].Children[0].Key)
	assert.Equal(t, "nested\n", p.Children[0].Children[0].Log.String())
	assert.Equal(t, []string{"Start Process:EXECUTE/9"}, p.Log.Lines())
	assert.Equal(t, inner.Key, p.LastUpdateStep.Key)
}

func TestRegistry_UnresolvedParentAttachesTopLevel(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t)
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/3"))

	step, err := r.RegisterStep(ctx, domain.StepCheck, "SUBMIT/3", "no-such-parent")
	require.NoError(t, err)

	p, _ := r.GetProcess(ctx, "SUBMIT/3")
	require.Len(t, p.Children, 1)
	assert.Equal(t, step.Key, p.Children[0].Key)
}

func TestRegistry_FinishProcessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, store, rec := newRegistry(t)
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/5"))

	r.FinishProcess(ctx, "SUBMIT/5", domain.StatusFailed, fmt.Errorf("submit: %w", errors.New("cluster down")))
	broadcasts := rec.Count()
	r.FinishProcess(ctx, "SUBMIT/5", domain.StatusFinished, nil)

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, broadcasts, rec.Count())

	snapshot, err := store.Load(ctx, "SUBMIT/5")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, snapshot.Status)
	assert.True(t, snapshot.Log.Contains("submit: cluster down\nCaused by: cluster down"))
	assert.True(t, snapshot.Log.Contains("Process SUBMIT/5 exit with status:FAILED"))
}

func TestRegistry_NonTerminalFinishIgnored(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRegistry(t)
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/6"))

	r.FinishProcess(ctx, "SUBMIT/6", domain.StatusRunning, nil)
	assert.Zero(t, store.saves)
	assert.Len(t, r.List(), 1)
}

func TestRegistry_StepErrorOnlyOnStepLog(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t)
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/7"))
	step, err := r.RegisterStep(ctx, domain.StepSubmit, "SUBMIT/7", "")
	require.NoError(t, err)

	r.FinishStep(ctx, "SUBMIT/7", step, domain.StatusFailed, errors.New("bad jar"))
	// Second finish is a no-op.
	r.FinishStep(ctx, "SUBMIT/7", step, domain.StatusFinished, nil)

	p, _ := r.GetProcess(ctx, "SUBMIT/7")
	assert.False(t, p.Log.Contains("bad jar"))
	assert.True(t, p.Log.Contains("Process Step SUBMIT exit with status:FAILED"))
	assert.Equal(t, domain.StatusFailed, p.Children[0].Status)
	assert.Equal(t, []string{"bad jar", "Process Step SUBMIT exit with status:FAILED"}, p.Children[0].Log.Lines())
}

func TestRegistry_PersistFailureStillEvicts(t *testing.T) {
	ctx := context.Background()
	r, store, rec := newRegistry(t)
	store.fail = errors.New("disk full")
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/8"))

	r.FinishProcess(ctx, "SUBMIT/8", domain.StatusFinished, nil)

	assert.Empty(t, r.List())
	_, ok := r.GetProcess(ctx, "SUBMIT/8")
	assert.False(t, ok)
	assert.Equal(t, domain.StatusFinished, rec.Last().Status)
}

func TestRegistry_ReturnedValuesAreDetached(t *testing.T) {
	ctx := context.Background()
	r, _, rec := newRegistry(t)
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/10"))

	p, _ := r.GetProcess(ctx, "SUBMIT/10")
	p.Log.Append("tampered")
	p.Children = append(p.Children, &domain.Step{Key: "fake"})
	rec.Last().Log.Append("tampered too")

	again, _ := r.GetProcess(ctx, "SUBMIT/10")
	assert.False(t, again.Log.Contains("tampered"))
	assert.Empty(t, again.Children)
}

// queuedExecutor holds submitted tasks until run is called.
type queuedExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queuedExecutor) Submit(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return true
}

func (q *queuedExecutor) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *queuedExecutor) run() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

func TestRegistry_LogBurstSharesOneBroadcast(t *testing.T) {
	ctx := context.Background()
	exec := &queuedExecutor{}
	r, _, rec := newRegistry(t, registry.WithExecutor(exec))
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/burst"))

	for i := 0; i < 300; i++ {
		r.AppendLog(ctx, "SUBMIT/burst", "", fmt.Sprintf("line %d", i), true)
	}
	assert.Equal(t, 1, exec.pending())

	exec.run()
	require.Equal(t, 1, rec.Count())
	lines := rec.Last().Log.Lines()
	assert.Len(t, lines, 301)
	assert.Equal(t, "line 299", lines[len(lines)-1])

	// Once the queued broadcast ran, the next mutation schedules another.
	r.FinishProcess(ctx, "SUBMIT/burst", domain.StatusFinished, nil)
	assert.Equal(t, 1, exec.pending())
	exec.run()
	assert.Equal(t, 2, rec.Count())
	assert.Equal(t, domain.StatusFinished, rec.Last().Status)
}

func TestRegistry_ConcurrentMutation(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRegistry(t, registry.WithExecutor(ports.ExecutorFunc(func(task func()) bool {
		go task()
		return true
	})))
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessExecute, "EXECUTE/1"))

	const workers = 16
	const lines = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			step, err := r.RegisterStep(ctx, domain.StepExecute, "EXECUTE/1", "")
			if !assert.NoError(t, err) {
				return
			}
			for j := 0; j < lines; j++ {
				r.AppendLog(ctx, "EXECUTE/1", step.Key, fmt.Sprintf("w%d-%d", i, j), true)
			}
			r.FinishStep(ctx, "EXECUTE/1", step, domain.StatusFinished, nil)
		}(i)
	}
	wg.Wait()
	r.FinishProcess(ctx, "EXECUTE/1", domain.StatusFinished, nil)

	snapshot, err := store.Load(ctx, "EXECUTE/1")
	require.NoError(t, err)
	require.Len(t, snapshot.Children, workers)
	for _, child := range snapshot.Children {
		assert.Len(t, child.Log.Lines(), lines+1)
		assert.Equal(t, domain.StatusFinished, child.Status)
	}
	// start + every line + every step exit + process exit
	assert.Len(t, snapshot.Log.Lines(), 1+workers*lines+workers+1)
}

func TestRegistry_ConcurrentRegistrationSingleWinner(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/race"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrProcessExists)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRegistry_ListOrderedByStart(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	r, _, _ := newRegistry(t, registry.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessSubmit, "b"))
	require.NoError(t, r.RegisterProcess(ctx, domain.ProcessExplain, "a"))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.ProcessSubmit, list[0].Type)
	assert.Equal(t, domain.ProcessExplain, list[1].Type)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_NameClaimAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := redisstore.NewLocker(client, "proctrace:")
	first, _, _ := newRegistry(t, registry.WithLocker(locker, time.Minute))
	second, _, _ := newRegistry(t, registry.WithLocker(locker, time.Minute))

	require.NoError(t, first.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/shared"))
	err := second.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/shared")
	assert.ErrorIs(t, err, domain.ErrProcessExists)

	first.FinishProcess(ctx, "SUBMIT/shared", domain.StatusFinished, nil)
	assert.NoError(t, second.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/shared"))
}

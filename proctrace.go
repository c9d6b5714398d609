package proctrace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/proctrace/internal/logging"
	"github.com/aretw0/proctrace/pkg/adapters/file"
	httpAdapter "github.com/aretw0/proctrace/pkg/adapters/http"
	mcpAdapter "github.com/aretw0/proctrace/pkg/adapters/mcp"
	"github.com/aretw0/proctrace/pkg/dispatch"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/aretw0/proctrace/pkg/hub"
	"github.com/aretw0/proctrace/pkg/metrics"
	"github.com/aretw0/proctrace/pkg/ports"
	"github.com/aretw0/proctrace/pkg/registry"
	"github.com/aretw0/proctrace/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Tracker wires a process registry to a push hub. It is the high-level entry point of the
// library: register work through Run and Step, serve observers through Handler.
type Tracker struct {
	Registry *registry.Registry
	Hub      *hub.Hub

	store      ports.SnapshotStore
	executor   *dispatch.Executor
	metrics    *metrics.Metrics
	prom       *prometheus.Registry
	logger     *slog.Logger
	queueSize  int
	hubOpts    []hub.Option
	locker     ports.DistributedLocker
	claimTTL   time.Duration
	reapMaxAge time.Duration
	reapEvery  time.Duration

	stopOnce   sync.Once
	stopReaper context.CancelFunc
	reaperDone chan struct{}
}

// Option defines a functional option for configuring the Tracker.
type Option func(*Tracker)

// WithLogger sets a custom structured logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithStore replaces the default file snapshot store.
func WithStore(store ports.SnapshotStore) Option {
	return func(t *Tracker) {
		t.store = store
	}
}

// WithQueueSize bounds the broadcast queue.
func WithQueueSize(n int) Option {
	return func(t *Tracker) {
		t.queueSize = n
	}
}

// WithHubOptions configures the push hub.
func WithHubOptions(opts ...hub.Option) Option {
	return func(t *Tracker) {
		t.hubOpts = append(t.hubOpts, opts...)
	}
}

// WithNameClaims claims process names through locker so that replicas sharing a store
// never track the same name at once.
func WithNameClaims(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(t *Tracker) {
		t.locker = locker
		t.claimTTL = ttl
	}
}

// WithReaper fails processes left unfinished for longer than maxAge, checking every interval.
func WithReaper(maxAge, interval time.Duration) Option {
	return func(t *Tracker) {
		t.reapMaxAge = maxAge
		t.reapEvery = interval
	}
}

// WithPrometheus registers the tracker collectors on reg instead of a private registry.
func WithPrometheus(reg *prometheus.Registry) Option {
	return func(t *Tracker) {
		t.prom = reg
	}
}

// New builds a Tracker. Snapshots go to <workDir>/tmp/log unless WithStore is given.
func New(workDir string, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		logger:    logging.NewNop(),
		queueSize: 1024,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.store == nil {
		if workDir == "" {
			return nil, fmt.Errorf("workDir is required when no custom store is provided")
		}
		t.store = file.New(workDir)
	}
	if t.prom == nil {
		t.prom = prometheus.NewRegistry()
		t.prom.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	t.metrics = metrics.New(t.prom)

	t.executor = dispatch.New(t.queueSize,
		dispatch.WithLogger(t.logger),
		dispatch.WithMetrics(t.metrics),
	)

	hubOpts := append([]hub.Option{
		hub.WithLogger(t.logger),
		hub.WithMetrics(t.metrics),
	}, t.hubOpts...)
	t.Hub = hub.New(hubOpts...)

	regOpts := []registry.Option{
		registry.WithBroadcaster(t.Hub),
		registry.WithExecutor(t.executor),
		registry.WithLogger(t.logger),
		registry.WithMetrics(t.metrics),
	}
	if t.locker != nil {
		regOpts = append(regOpts, registry.WithLocker(t.locker, t.claimTTL))
	}
	t.Registry = registry.New(t.store, regOpts...)

	if t.reapMaxAge > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		t.stopReaper = cancel
		t.reaperDone = make(chan struct{})
		go func() {
			defer close(t.reaperDone)
			t.Registry.StartReaper(ctx, t.reapMaxAge, t.reapEvery)
		}()
	}
	return t, nil
}

// Run traces fn as the process named after req. See tracing.Run.
func (t *Tracker) Run(ctx context.Context, req tracing.Request, fn func(ctx context.Context) error) error {
	return tracing.Run(ctx, t.Registry, req, fn)
}

// Step traces fn as a step of the process carried by ctx. See tracing.Step.
func (t *Tracker) Step(ctx context.Context, typ domain.StepType, fn func(ctx context.Context) error) error {
	return tracing.Step(ctx, t.Registry, typ, fn)
}

// Logger returns a logger whose records emitted with a traced context also land in the
// process log.
func (t *Tracker) Logger() *slog.Logger {
	return slog.New(tracing.NewHandler(t.logger.Handler(), t.Registry))
}

// Handler returns the HTTP API: observer push channels, process queries, health and metrics.
func (t *Tracker) Handler() http.Handler {
	return httpAdapter.NewHandler(t.Registry, t.Hub,
		httpAdapter.WithLogger(t.logger),
		httpAdapter.WithGatherer(t.prom),
		httpAdapter.WithVersion(strings.TrimSpace(Version)),
	)
}

// MCPServer returns an MCP server exposing the processes.
func (t *Tracker) MCPServer() *mcpAdapter.Server {
	return mcpAdapter.NewServer(t.Registry, strings.TrimSpace(Version), mcpAdapter.WithLogger(t.logger))
}

// Store returns the snapshot store.
func (t *Tracker) Store() ports.SnapshotStore {
	return t.store
}

// Close stops the reaper, completes every observer channel, drains pending broadcasts and
// closes the store when it holds resources.
func (t *Tracker) Close(ctx context.Context) error {
	var errs []error
	t.stopOnce.Do(func() {
		if t.stopReaper != nil {
			t.stopReaper()
			<-t.reaperDone
		}
		if err := t.executor.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain broadcasts: %w", err))
		}
		t.Hub.Shutdown()
		if c, ok := t.store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

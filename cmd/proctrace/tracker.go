package main

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/proctrace"
	"github.com/aretw0/proctrace/internal/config"
	"github.com/aretw0/proctrace/pkg/adapters/file"
	"github.com/aretw0/proctrace/pkg/adapters/memory"
	redisstore "github.com/aretw0/proctrace/pkg/adapters/redis"
	"github.com/aretw0/proctrace/pkg/hub"
	"github.com/aretw0/proctrace/pkg/ports"
)

// openStore builds the snapshot store selected by cfg. The locker is set for the redis backend
// when name claims are enabled.
func openStore(cfg config.Config) (ports.SnapshotStore, ports.DistributedLocker, error) {
	switch cfg.Store.Backend {
	case config.BackendFile:
		return file.New(cfg.WorkDir), nil, nil
	case config.BackendMemory:
		return memory.NewStore(), nil, nil
	case config.BackendRedis:
		rc := cfg.Store.Redis
		store := redisstore.New(rc.Addr, rc.Password, rc.DB,
			redisstore.WithPrefix(rc.Prefix+"snapshot:"),
			redisstore.WithTTL(rc.TTL),
		)
		if rc.ClaimTTL <= 0 {
			return store, nil, nil
		}
		return store, redisstore.NewLocker(store.Client(), rc.Prefix), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newTracker(cfg config.Config, logger *slog.Logger) (*proctrace.Tracker, error) {
	store, locker, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	opts := []proctrace.Option{
		proctrace.WithLogger(logger),
		proctrace.WithStore(store),
		proctrace.WithQueueSize(cfg.Dispatch.Queue),
		proctrace.WithHubOptions(
			hub.WithIdleTimeout(cfg.Hub.IdleTimeout),
			hub.WithReconnectHint(cfg.Hub.ReconnectHint),
			hub.WithBuffer(cfg.Hub.Buffer),
			hub.WithStallTimeout(cfg.Hub.StallTimeout),
		),
		proctrace.WithReaper(cfg.Reaper.MaxAge, cfg.Reaper.Interval),
	}
	if locker != nil {
		opts = append(opts, proctrace.WithNameClaims(locker, cfg.Store.Redis.ClaimTTL))
	}
	return proctrace.New(cfg.WorkDir, opts...)
}

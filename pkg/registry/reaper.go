package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/proctrace/pkg/domain"
)

// Reap fails every in-flight process that started more than maxAge ago and returns how many
// were failed. A non-positive maxAge disables reaping.
func (r *Registry) Reap(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := r.timestamp().Add(-maxAge)

	var stale []string
	r.mu.RLock()
	for name, e := range r.procs {
		e.mu.RLock()
		if !e.closed && e.process.StartTime.Before(cutoff) {
			stale = append(stale, name)
		}
		e.mu.RUnlock()
	}
	r.mu.RUnlock()

	for _, name := range stale {
		r.logger.Warn("Reaping abandoned process", "process", name, "max_age", maxAge)
		r.FinishProcess(ctx, name, domain.StatusFailed,
			fmt.Errorf("%w: started more than %s ago", domain.ErrProcessAbandoned, maxAge))
	}
	return len(stale)
}

// StartReaper runs Reap every interval until ctx is done. It returns immediately when
// maxAge is not positive.
func (r *Registry) StartReaper(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(ctx, maxAge); n > 0 {
				r.logger.Info("Reaper finished sweep", "reaped", n)
			}
		}
	}
}

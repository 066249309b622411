package tenant

import (
	"context"
	"log/slog"
	"time"
)

// Refresher periodically re-resolves cached tenants so a renamed site is
// picked up without a restart.
type Refresher struct {
	interval time.Duration
	resolver *Resolver
}

func NewRefresher(interval time.Duration, resolver *Resolver) *Refresher {
	return &Refresher{interval: interval, resolver: resolver}
}

// Start runs until ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("[TenantRefresher] Starting", "interval", r.interval)

	for {
		select {
		case <-ticker.C:
			r.refresh(ctx)
		case <-ctx.Done():
			slog.Info("[TenantRefresher] Stopping (context cancelled)")
			return nil
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	start := time.Now()
	updated, evicted := r.resolver.Refresh(ctx)
	if evicted > 0 {
		slog.Info("[TenantRefresher] Evicted sites that no longer resolve", "evicted", evicted)
	}
	slog.Debug("[TenantRefresher] Refresh complete",
		"updated", updated,
		"evicted", evicted,
		"took", time.Since(start))
}

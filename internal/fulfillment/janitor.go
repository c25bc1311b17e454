package fulfillment

import (
	"context"
	"time"

	"products-stocks-telegram/internal/repository"

	"go.uber.org/zap"
)

// Janitor releases claims older than the lease. Claims never expire unless one is running.
type Janitor struct {
	store    repository.ClaimStore
	lease    time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewJanitor creates a lease janitor. lease <= 0 makes Run return immediately.
func NewJanitor(store repository.ClaimStore, lease, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		store:    store,
		lease:    lease,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Enabled reports whether a lease is configured
func (j *Janitor) Enabled() bool {
	return j.lease > 0
}

// Sweep releases every claim taken before now-lease once
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	released, err := j.store.ReleaseExpired(ctx, j.now().Add(-j.lease))
	if err != nil {
		return 0, err
	}
	if released > 0 {
		j.logger.Info("Expired claims released",
			zap.Int64("released", released),
			zap.Duration("lease", j.lease),
		)
	}
	return released, nil
}

// Run sweeps on every tick until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	if !j.Enabled() {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("🧹 Claim lease janitor started",
		zap.Duration("lease", j.lease),
		zap.Duration("interval", j.interval),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.Error("Lease sweep failed", zap.Error(err))
			}
		}
	}
}

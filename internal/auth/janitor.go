// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPurgeInterval is how often the janitor sweeps expired sessions
// when no interval is configured.
const DefaultPurgeInterval = 5 * time.Minute

// Janitor periodically removes expired sessions. Expired sessions are
// already invisible to EnsureSession; the janitor only reclaims storage.
type Janitor struct {
	sessions SessionRepository
	interval time.Duration
	logger   *slog.Logger
	onPurge  func(count int64)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a session janitor. A non-positive interval falls
// back to DefaultPurgeInterval.
func NewJanitor(sessions SessionRepository, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	return &Janitor{
		sessions: sessions,
		interval: interval,
		logger:   slog.Default(),
	}
}

// SetLogger overrides the default logger. Must be called before Start.
func (j *Janitor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// OnPurge registers a callback invoked with the number of sessions
// removed by each successful sweep. Must be called before Start.
func (j *Janitor) OnPurge(fn func(count int64)) {
	j.onPurge = fn
}

// RunOnce executes a single purge cycle.
func (j *Janitor) RunOnce(ctx context.Context) error {
	purged, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("session purge failed", "error", err)
		return err
	}
	if purged > 0 {
		j.logger.Info("purged expired sessions", "count", purged)
	}
	if j.onPurge != nil {
		j.onPurge(purged)
	}
	return nil
}

// Start begins periodic purging.
func (j *Janitor) Start(ctx context.Context) error {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.run(ctx)
	return nil
}

// Stop stops the janitor and waits for the current cycle to finish.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately
	_ = j.RunOnce(ctx) //nolint:errcheck // logged inside RunOnce

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.RunOnce(ctx) //nolint:errcheck // logged inside RunOnce
		}
	}
}

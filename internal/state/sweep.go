package state

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweep periodically refreshes all running machines so state converges even
// when no client polls. It is an optimization only: every read self-corrects,
// so skipping or repeating a tick changes nothing.
type Sweep struct {
	store    *Store
	interval time.Duration
	enabled  bool
	logger   *zap.Logger
}

// NewSweep creates a background sweep over the given store.
func NewSweep(store *Store, interval time.Duration, enabled bool, logger *zap.Logger) *Sweep {
	return &Sweep{store: store, interval: interval, enabled: enabled, logger: logger}
}

// Run ticks until the context is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	if !s.enabled {
		s.logger.Info("timer sweep is disabled, relying on read-side refresh")
		return
	}
	s.logger.Info("timer sweep started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.store.RefreshTimers(ctx)
		case <-ctx.Done():
			s.logger.Info("timer sweep stopped")
			return
		}
	}
}

package inbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/internal/observability"
)

// Sweeper periodically flags notifications whose pending item has aged past
// the configured threshold.
type Sweeper struct {
	store     Store
	threshold time.Duration
	interval  time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewSweeper creates a sweeper. threshold is how old a pending item must be
// before its notifications become alerts; interval is how often to sweep.
func NewSweeper(store Store, threshold, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		threshold: threshold,
		interval:  interval,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Warn("inbox sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep performs one pass: every pending item older than the threshold gets
// its notifications flagged as alerts. Returns the first store error.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.threshold)
	stale, err := s.store.StalePending(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, item := range stale {
		flagged, err := s.store.MarkAlert(ctx, item.UserID, item.ProcessID)
		if err != nil {
			return err
		}
		if flagged > 0 {
			if s.metrics != nil {
				s.metrics.InboxAlertsTotal.Inc()
			}
			s.logger.Info("pending item escalated to alert",
				zap.String("user_id", item.UserID),
				zap.String("process_id", item.ProcessID),
			)
		}
	}
	return nil
}

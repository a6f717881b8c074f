package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/models"
)

type noticeSweepRepository interface {
	ListDue(ctx context.Context, cutoff time.Time) ([]models.Notice, error)
	Publish(ctx context.Context, id string, now time.Time) (bool, error)
}

// NoticeSweeper periodically promotes due scheduled notices to active.
//
// A pass is idempotent: promotion is a compare-and-swap on is_scheduled, so
// re-running a pass, or two instances sweeping concurrently, publishes each
// notice exactly once.
type NoticeSweeper struct {
	repo     noticeSweepRepository
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewNoticeSweeper constructs a sweeper. A non-positive interval falls back
// to one minute, a non-positive timeout to thirty seconds.
func NewNoticeSweeper(repo noticeSweepRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, interval, timeout time.Duration) *NoticeSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeSweeper{repo: repo, cache: cache, metrics: metrics, logger: logger, interval: interval, timeout: timeout}
}

// RunOnce performs a single sweep pass against the given cutoff and returns
// the number of notices promoted. A failure on one notice is logged and does
// not stop the rest of the pass.
func (s *NoticeSweeper) RunOnce(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("notice sweep query failed", zap.Error(err))
		s.metrics.RecordSweep(0, 0)
		return 0, err
	}

	published := 0
	failed := 0
	for _, notice := range due {
		applied, err := s.repo.Publish(ctx, notice.ID, now)
		if err != nil {
			failed++
			s.logger.Error("failed to publish scheduled notice",
				zap.String("notice_id", notice.ID), zap.Error(err))
			continue
		}
		if applied {
			published++
			s.logger.Info("scheduled notice published",
				zap.String("notice_id", notice.ID),
				zap.Timep("scheduled_at", notice.ScheduledAt))
		}
	}

	if published > 0 {
		// promoted notices change what listings return, so cached pages
		// must not outlive the pass
		if err := s.cache.Invalidate(ctx, noticeCachePattern); err != nil {
			s.logger.Warn("failed to invalidate notice listings after sweep", zap.Error(err))
		}
	}

	s.metrics.RecordSweep(published, failed)
	if published > 0 || failed > 0 {
		s.logger.Info("notice sweep finished",
			zap.Int("due", len(due)), zap.Int("published", published), zap.Int("failed", failed))
	}
	return published, nil
}

// Run drives periodic sweep passes until the context is cancelled. Each pass
// runs under its own timeout so a slow database cannot stall the loop.
func (s *NoticeSweeper) Run(ctx context.Context) {
	s.logger.Info("notice sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("notice sweeper stopped")
			return
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, s.timeout)
			if _, err := s.RunOnce(passCtx, time.Now().UTC()); err != nil {
				s.logger.Warn("notice sweep pass failed", zap.Error(err))
			}
			cancel()
		}
	}
}

package numpool

import (
	"context"
	"log/slog"
	"time"

	"otprelay/core/logger"
	"otprelay/internal/otp"
)

// Sweeper periodically reclaims expired leases. Reclaimed numbers are
// reported through OnReclaim so the front-end can notify former holders;
// the callback runs outside the manager's lock.
type Sweeper struct {
	Manager  *Manager
	Interval time.Duration

	// OnReclaim, when set, receives the canonical values reclaimed by one
	// sweep pass.
	OnReclaim func(ctx context.Context, values []string)
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info(ctx, "pool.sweep", "sweep.start",
		slog.Int64("duration_ms", interval.Milliseconds()),
	)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "pool.sweep", "sweep.stop")
			return
		case now := <-ticker.C:
			s.sweep(ctx, now)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	reclaimed, err := s.Manager.ReclaimExpired(now, s.Manager.TTL())
	if err != nil {
		logger.Error(ctx, "pool.sweep", "sweep.fail",
			slog.String("err", err.Error()),
		)
		return
	}
	if len(reclaimed) == 0 {
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "pool.sweep", "sweep.idle")
		}
		return
	}
	masked := make([]string, len(reclaimed))
	for i, v := range reclaimed {
		masked[i] = otp.MaskNumber(v)
	}
	logger.Info(ctx, "pool.sweep", "sweep.reclaim",
		slog.Int("reclaimed", len(reclaimed)),
		slog.Any("numbers", masked),
	)
	if s.OnReclaim != nil {
		s.OnReclaim(ctx, reclaimed)
	}
}

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"bookingcore/internal/logger"
)

// Poller runs one pass of background work.
type Poller interface {
	Poll(ctx context.Context) (int, error)
}

// StartRefundPolling schedules p every interval. Runs never overlap; a slow
// pass makes the next tick wait. Shut the returned scheduler down on exit.
func StartRefundPolling(ctx context.Context, p Poller, interval time.Duration, log logger.Logger) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("refund poll interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()
			n, err := p.Poll(runCtx)
			if err != nil {
				log.Warn("refund poll failed", "error", err)
				return
			}
			if n > 0 {
				log.Info("refunds advanced", "count", n)
			}
		}),
		gocron.WithName("refund-poller"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}

	s.Start()
	log.Info("refund poller started", "interval", interval.String())
	return s, nil
}

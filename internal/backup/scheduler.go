package backup

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

const cycleKey = "sync"

// CycleRunner runs one sync cycle over the monitored folders.
type CycleRunner interface {
	RunSyncCycle(ctx context.Context, folders []string) *SyncReport
}

// Scheduler runs sync cycles periodically and on demand. At most one cycle
// runs at a time; a trigger that arrives during a cycle waits for it and
// receives its report.
type Scheduler struct {
	runner   CycleRunner
	folders  []string
	interval time.Duration
	logger   Logger

	group singleflight.Group
}

// NewScheduler creates a Scheduler. A non-positive interval disables the
// periodic cycles; Run then performs a single cycle and waits for ctx.
func NewScheduler(runner CycleRunner, folders []string, interval time.Duration, logger Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		folders:  folders,
		interval: interval,
		logger:   logger,
	}
}

// Run performs a cycle immediately and then one every interval until ctx is
// cancelled. A tick that fires while a cycle is still running joins it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Trigger(ctx)

	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger runs a cycle, or joins the one already running. shared reports
// whether the report came from a cycle started by another caller.
func (s *Scheduler) Trigger(ctx context.Context) (report *SyncReport, shared bool) {
	v, _, shared := s.group.Do(cycleKey, func() (any, error) {
		return s.runner.RunSyncCycle(ctx, s.folders), nil
	})
	report = v.(*SyncReport)
	if shared {
		s.logger.Debug("joined running sync cycle")
	}
	return report, shared
}

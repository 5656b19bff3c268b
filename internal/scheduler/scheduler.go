package scheduler

import (
	"context"
	"time"

	"optrix/internal/logger"
)

// AlignedScheduler fires a task aligned to interval boundaries plus an
// offset. The offset gives the data feed time to finalize the just-closed
// bar before the task reads it.
type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks, invoking task once per aligned interval until ctx is done.
// The stop flag is checked only between runs; an in-flight task always runs
// to completion.
func (s *AlignedScheduler) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("AlignedScheduler: task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("AlignedScheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn()
	logger.Infof("AlignedScheduler: started interval=%s offset=%s run_immediately=%v at=%s",
		s.Interval, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task()
	}

	for {
		now := s.nowFn()
		_, wakeAt, wait := s.nextTimes(now)

		logger.Debugf("AlignedScheduler: next run at %s (in %s)",
			wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))

		if wait <= 0 {
			task()
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("AlignedScheduler: ctx done, exit")
			return
		case <-timer.C:
		}
		task()
	}
}

func (s *AlignedScheduler) nextTimes(now time.Time) (nextClose time.Time, wakeAt time.Time, wait time.Duration) {
	nextClose = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	wait = wakeAt.Sub(now)
	return nextClose, wakeAt, wait
}

// FixedScheduler fires a task on a fixed period with no boundary alignment.
// The risk monitor runs on this.
type FixedScheduler struct {
	Period time.Duration

	ctx context.Context
}

func NewFixedScheduler(ctx context.Context, period time.Duration) *FixedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &FixedScheduler{Period: period, ctx: ctx}
}

func (s *FixedScheduler) Start(task func()) {
	if s == nil || task == nil || s.Period <= 0 {
		logger.Warnf("FixedScheduler: misconfigured, exit")
		return
	}
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	task()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("FixedScheduler: ctx done, exit")
			return
		case <-ticker.C:
			task()
		}
	}
}

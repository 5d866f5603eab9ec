// Package scheduler drives periodic collection runs on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/japanese-wolf/brain-stream/internal/logger"
)

// Scheduler fires a job on a constant interval. Overlapping ticks are
// suppressed, not queued: if the previous run is still executing when the
// next tick fires, that tick is dropped and the cadence stays anchored to
// the original schedule.
type Scheduler struct {
	cron       *cron.Cron
	job        cron.Job
	interval   time.Duration
	runOnStart bool
	entryID    cron.EntryID
	started    atomic.Bool
	startup    sync.WaitGroup // tracks the run-on-start job, which runs outside cron
}

// New creates a scheduler around the given job.
func New(interval time.Duration, runOnStart bool, job func()) *Scheduler {
	if interval < time.Minute {
		interval = 30 * time.Minute
	}
	// SkipIfStillRunning enforces the single-run rule at the tick level;
	// the startup run goes through the same wrapper so it participates in
	// the suppression too.
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(job))
	return &Scheduler{
		cron:       cron.New(),
		job:        wrapped,
		interval:   interval,
		runOnStart: runOnStart,
	}
}

// Start schedules the ticks and, when configured, kicks an immediate run.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.entryID = s.cron.Schedule(cron.Every(s.interval), s.job)
	s.cron.Start()
	logger.Info("scheduler started", "interval", s.interval.String(), "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.job.Run()
		}()
	}
}

// Stop prevents future ticks and waits for an in-flight run to return,
// bounded by ctx. It never cancels the run itself.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}

	done := s.cron.Stop()
	finished := make(chan struct{})
	go func() {
		<-done.Done()
		s.startup.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("scheduler stop timed out with a run still in flight")
		return ctx.Err()
	}
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	return s.started.Load()
}

// NextRun returns the next scheduled tick, zero when not running.
func (s *Scheduler) NextRun() time.Time {
	if !s.started.Load() {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

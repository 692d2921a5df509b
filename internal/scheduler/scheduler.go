// Package scheduler fires the recurring jobs on wall-clock boundaries:
// catalog discovery, the pre-start sweep and the nightly result sweep.
// Ticks of the same job never overlap; a tick missed while its
// predecessor ran is skipped, not queued.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/guard"
	"github.com/oddswatch/engine/internal/infra"
)

// Job names double as log fields and overlap-guard keys.
const (
	JobDiscovery = "discovery"
	JobPreStart  = "pre_start"
	JobMidnight  = "midnight_results"
)

const (
	// midnightHour is the local hour of the nightly result sweep. By
	// 04:00 even the late evening card has crossed its result cutoff.
	midnightHour = 4

	drainTimeout = 30 * time.Second
)

// Job is one schedulable tick. tick is the clock boundary it fired on.
type Job func(ctx context.Context, tick time.Time) error

// Scheduler owns the three recurring loops. It takes jobs as functions so
// main decides what each tick actually does.
type Scheduler struct {
	cfg    *infra.Config
	flags  *guard.JobFlags
	logger *slog.Logger

	discovery Job
	preStart  Job
	midnight  Job

	wg sync.WaitGroup
}

func New(cfg *infra.Config, discovery, preStart, midnight Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		flags:     guard.NewJobFlags(),
		logger:    logger,
		discovery: discovery,
		preStart:  preStart,
		midnight:  midnight,
	}
}

// Run blocks until ctx is cancelled, then waits up to 30 seconds for
// in-flight ticks to wind down. It returns ErrCancelled when shutdown
// caught a tick mid-flight, nil on an idle shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"discovery_every", s.cfg.DiscoveryInterval(),
		"pre_start_every", s.cfg.PollInterval(),
		"midnight_at", NextDailyAt(time.Now(), midnightHour, s.cfg.Location()))

	// A fresh process runs both ingest jobs immediately: the catalog may
	// be stale and events may already sit inside the pre-start window.
	boot := time.Now().Truncate(time.Minute)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.runTick(ctx, JobDiscovery, boot, s.discovery)
	}()
	go func() {
		defer s.wg.Done()
		s.runTick(ctx, JobPreStart, boot, s.preStart)
	}()

	s.wg.Add(3)
	go s.loop(ctx, JobDiscovery, s.cfg.DiscoveryInterval(), s.discovery)
	go s.loop(ctx, JobPreStart, s.cfg.PollInterval(), s.preStart)
	go s.midnightLoop(ctx)

	<-ctx.Done()
	interrupted := s.flags.Running(JobDiscovery) ||
		s.flags.Running(JobPreStart) ||
		s.flags.Running(JobMidnight)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.logger.Warn("drain timeout, abandoning running ticks")
		interrupted = true
	}

	s.logger.Info("scheduler stopped")
	if interrupted {
		return domain.ErrCancelled()
	}
	return nil
}

// loop fires job on every interval boundary of the wall clock.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, job Job) {
	defer s.wg.Done()
	for {
		next := NextAligned(time.Now(), interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		s.runTick(ctx, name, next, job)
	}
}

// midnightLoop fires once a night at the local sweep hour.
func (s *Scheduler) midnightLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		next := NextDailyAt(time.Now(), midnightHour, s.cfg.Location())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		s.runTick(ctx, JobMidnight, next, s.midnight)
	}
}

// runTick executes one tick under the overlap guard.
func (s *Scheduler) runTick(ctx context.Context, name string, tick time.Time, job Job) {
	if !s.flags.TryAcquire(name) {
		s.logger.Warn("previous tick still running, skipping", "job", name, "tick", tick)
		return
	}
	defer s.flags.Release(name)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in job tick", "job", name, "panic", r)
		}
	}()

	if err := job(ctx, tick); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("job tick failed", "job", name, "error", err)
	}
}

// NextAligned returns the first multiple of interval after now on the
// wall clock, so a 2h cadence fires on even hours and a 5m cadence on
// :00, :05, :10 and so on.
func NextAligned(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// NextDailyAt returns the next occurrence of hour:00 in loc.
func NextDailyAt(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !run.After(local) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// NextRuns reports the upcoming boundary of every job, for the status
// command.
func NextRuns(cfg *infra.Config, now time.Time) map[string]time.Time {
	return map[string]time.Time{
		JobDiscovery: NextAligned(now, cfg.DiscoveryInterval()),
		JobPreStart:  NextAligned(now, cfg.PollInterval()),
		JobMidnight:  NextDailyAt(now, midnightHour, cfg.Location()),
	}
}

// Package scheduler invokes backup runs on a cron schedule and guarantees that
// invocations never overlap.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// runKey is the single flight key shared by every invocation.
const runKey = "run"

// Job is the work performed on every tick.
type Job interface {
	Run(ctx context.Context) error
}

// Scheduler runs a Job on a standard cron schedule. A tick or Trigger that arrives while
// a run is in flight joins that run instead of starting a second one.
type Scheduler struct {
	job      Job
	schedule string
	cron     *cron.Cron
	group    singleflight.Group
	mu       sync.Mutex
	running  bool
}

// New creates a new scheduler for job. The schedule uses standard cron syntax,
// including descriptors like "@hourly".
func New(job Job, schedule string) *Scheduler {
	return &Scheduler{
		job:      job,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the job and starts the cron loop. The scheduler stops by itself
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Trigger(ctx); err != nil {
			plog.Warn("Scheduled backup run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule backup run: %w", err)
	}

	s.cron.Start()
	s.running = true
	plog.Info("Backup scheduler started", "schedule", s.schedule)

	// Wait for context cancellation in background
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Trigger runs the job now, or waits for the run already in flight. shared reports
// whether the result came from a run started by another caller.
func (s *Scheduler) Trigger(ctx context.Context) (shared bool, err error) {
	_, err, shared = s.group.Do(runKey, func() (interface{}, error) {
		start := time.Now()
		plog.Debug("Backup run triggered")
		err := s.job.Run(ctx)
		plog.Debug("Backup run returned", "duration", time.Since(start).String())
		return nil, err
	})
	if shared {
		plog.Debug("Joined backup run already in progress")
	}
	return shared, err
}

// Stop stops the scheduler and waits for any running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done() // Wait for running jobs to finish
		s.running = false
		plog.Info("Backup scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled run time, or nil if nothing is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}

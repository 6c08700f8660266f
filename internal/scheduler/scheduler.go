// Package scheduler runs periodic background jobs such as orphan cleanup.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a task run every Interval. A job with a zero Interval is skipped.
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the job once as soon as the scheduler starts.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs jobs on independent tickers. A failing run is logged and
// the job runs again at its next tick. Runs of one job never overlap.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler for jobs.
func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger}
}

// Start launches every enabled job. It returns immediately; jobs stop when
// ctx is canceled or Stop is called. Calling Start twice does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.logger.Info("scheduled job disabled", "job", job.Name)
			continue
		}
		s.wg.Go(func() { s.loop(ctx, job) })
		s.logger.Info("scheduled job started", "job", job.Name, "interval", job.Interval)
	}
}

// Stop cancels every job and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if job.RunOnStart {
		s.run(ctx, job)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, job)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "job", job.Name, "panic", r)
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("scheduled job failed", "job", job.Name, "error", err)
		return
	}
	s.logger.Debug("scheduled job finished", "job", job.Name, "duration", time.Since(start))
}

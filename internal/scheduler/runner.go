/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler runs the periodic booking jobs: the expiry sweep, the
// reminder scan and connection pool gauges.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

const tracerName = "slotkeeper/scheduler"

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner ticks each registered job on its own interval. A job never overlaps
// with itself; different jobs run concurrently.
type Runner struct {
	jobs   []Job
	logger zerolog.Logger
}

// NewRunner creates a runner for jobs.
func NewRunner(logger zerolog.Logger, jobs ...Job) *Runner {
	return &Runner{
		jobs:   jobs,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Jobs returns the registered job names in registration order.
func (r *Runner) Jobs() []string {
	names := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		names[i] = j.Name
	}
	return names
}

// Run executes every job once immediately and then on each tick. It blocks
// until ctx is cancelled, even when no job is runnable.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Strs("jobs", r.Jobs()).Msg("scheduler loop started")

	var wg sync.WaitGroup
	for _, job := range r.jobs {
		if job.Interval <= 0 || job.Run == nil {
			r.logger.Warn().Str("job", job.Name).Msg("skipping job without interval or body")
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			r.loop(ctx, job)
		}(job)
	}
	wg.Wait()
	<-ctx.Done()

	r.logger.Info().Msg("scheduler loop stopped")
	return ctx.Err()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	r.RunOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes job a single time, recording metrics and a span. Errors
// are logged, never propagated.
func (r *Runner) RunOnce(ctx context.Context, job Job) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "scheduler."+job.Name, attribute.String("job", job.Name))
	start := time.Now()
	telemetry.SchedulerTicksTotal.WithLabelValues(job.Name).Inc()

	err := job.Run(ctx)
	telemetry.SchedulerJobDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
	telemetry.EndSpan(span, err)

	if err != nil && !errors.Is(err, context.Canceled) {
		telemetry.SchedulerErrorsTotal.WithLabelValues(job.Name).Inc()
		r.logger.Error().Err(err).Str("job", job.Name).Msg("scheduled job failed")
	}
}

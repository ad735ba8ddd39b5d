package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/service/probation"
)

// TransitionRunner is the part of the probation engine the daily job drives
type TransitionRunner interface {
	ProcessDailyTransitions(ctx context.Context, opts probation.RunOptions) (probation.DailyReport, error)
}

// ProbationJobs contains probation-related cron jobs
type ProbationJobs struct {
	runner   TransitionRunner
	interval time.Duration
	location *time.Location
	now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewProbationJobs creates probation cron jobs. The job ticks every interval
// and runs the transitions at most once per calendar day in loc.
func NewProbationJobs(runner TransitionRunner, interval time.Duration, loc *time.Location) *ProbationJobs {
	if loc == nil {
		loc = time.UTC
	}
	return &ProbationJobs{
		runner:   runner,
		interval: interval,
		location: loc,
		now:      time.Now,
	}
}

// RegisterJobs registers all probation-related cron jobs
func (j *ProbationJobs) RegisterJobs(scheduler *Scheduler) {
	// Transition probations ending today (check every tick)
	scheduler.AddJob(
		"process_probation_transitions",
		j.interval,
		j.ProcessDailyTransitions,
	)
}

// ProcessDailyTransitions runs the daily probation pass for today. Later
// ticks on the same day are no-ops; a failed run is retried on the next tick.
func (j *ProbationJobs) ProcessDailyTransitions(ctx context.Context) error {
	local := j.now().In(j.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.lastRun.Equal(today) {
		return nil
	}

	report, err := j.runner.ProcessDailyTransitions(ctx, probation.RunOptions{AsOf: today})
	if err != nil {
		return err
	}
	j.lastRun = today

	slog.Info("probation transitions processed",
		"as_of", today.Format("2006-01-02"),
		"passed", len(report.Passed),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors),
	)
	return nil
}

package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	dailycron "github.com/yycweather/dashboard/internal/cron"
)

// Scheduler periodically triggers the daily refresh job in-process. It can
// fire far more often than once a day; the job's idempotency gate makes the
// extra triggers no-ops.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *dailycron.Job
	interval  time.Duration
}

// New creates a Scheduler driving the given job.
func New(job *dailycron.Job, interval time.Duration) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		job:       job,
		interval:  interval,
	}
}

// Start schedules the periodic trigger and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := s.job.Run(ctx, false)
		if err != nil {
			log.Printf("scheduler: refresh failed: %v", err)
			return
		}
		if res.Status == dailycron.StatusSkipped {
			log.Printf("scheduler: refresh skipped: %s", res.Reason)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Package scheduler runs the report batch and the maintenance jobs on cron
// schedules.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Entry pairs a job with its cron schedule. Schedules carry a leading
// seconds field ("0 30 2 * * *"); descriptors like "@weekly" also work.
// An empty schedule registers nothing and leaves the job on demand.
type Entry struct {
	Schedule string
	Job      Job
}

// ErrorEmitter publishes failed runs as error events
type ErrorEmitter interface {
	EmitError(module string, err error, context map[string]interface{})
}

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	emitter ErrorEmitter
	log     zerolog.Logger
}

// New creates a scheduler. emitter may be nil.
func New(emitter ErrorEmitter, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		emitter: emitter,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", s.Entries()).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// Register adds every entry with a schedule, stopping at the first invalid one.
func (s *Scheduler) Register(entries ...Entry) error {
	for _, e := range entries {
		if e.Schedule == "" {
			s.log.Info().Str("job", e.Job.Name()).Msg("No schedule, job runs on demand only")
			continue
		}
		if err := s.AddJob(e.Schedule, e.Job); err != nil {
			return err
		}
	}
	return nil
}

// AddJob registers a job with a cron schedule
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(job)
	})
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", job.Name(), schedule, err)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(job)
}

func (s *Scheduler) execute(job Job) error {
	start := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	err := job.Run()
	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("Job failed")
		if s.emitter != nil {
			s.emitter.EmitError("scheduler", err, map[string]interface{}{"job": job.Name()})
		}
		return err
	}

	s.log.Debug().Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("Job completed")
	return nil
}

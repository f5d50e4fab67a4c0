package clock

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the recurring jobs registered with AddJob on cron
// expressions, adapted from bare ticker loops into a named, cron-spec'd job
// table so operators can see and tune each job's cadence independently. The
// engine starts and stops a Scheduler but registers no jobs on it.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler builds a Scheduler using cron's standard 5-field parser.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
		logger: logger,
	}
}

// AddJob schedules fn to run on the given cron spec under name, logging
// and recovering any panic so one broken job never stops the others.
func (s *Scheduler) AddJob(name, spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked", "job", name, "recovered", r)
			}
		}()
		s.logger.Debug("running scheduled job", "job", name)
		fn()
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

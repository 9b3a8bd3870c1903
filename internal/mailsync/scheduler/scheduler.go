package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is one scheduled unit of work. ctx is cancelled when the scheduler stops.
type JobFunc func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules. A run that is still going
// when its next tick arrives causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// New creates a scheduler whose jobs inherit ctx values (logger, deadlines)
func New(ctx context.Context) *Scheduler {
	log := logger.Component(logger.FromContext(ctx), "scheduler")
	adapter := cronLogger{log: log}
	ctx, cancel := context.WithCancel(logger.WithContext(ctx, log))

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Add registers a job under a standard five-field cron spec or a descriptor such as "@hourly"
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	if spec == "" {
		return fmt.Errorf("schedule %s: empty spec", name)
	}
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.log.Info().Str("job", name).Msg("job started")
		if err := job(s.ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("job failed")
			return
		}
		s.log.Info().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.log.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

// Start begins firing jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// cronLogger adapts zerolog to cron's logger interface
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

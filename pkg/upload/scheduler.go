package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/tally/internal/tracing"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule triggers an upload every fifteen minutes.
const DefaultSchedule = "@every 15m"

// Scheduler triggers background uploads on a cron schedule.
type Scheduler struct {
	uploader *Uploader
	spec     string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a scheduler for spec, a standard five-field cron
// expression or descriptor such as "@every 15m".
func NewScheduler(uploader *Uploader, spec string) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	return &Scheduler{uploader: uploader, spec: spec}
}

// Start begins triggering uploads.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.spec, s.Trigger); err != nil {
		return fmt.Errorf("invalid upload schedule %q: %w", s.spec, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	log.Info().Str("schedule", s.spec).Msg("Upload scheduler started")
	return nil
}

// Stop ends scheduling and waits for a trigger in progress to return.
// Uploads already started keep running; use Uploader.Close to cancel them.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}

	<-s.cron.Stop().Done()
	s.running = false
	log.Info().Msg("Upload scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Schedule returns the cron expression.
func (s *Scheduler) Schedule() string {
	return s.spec
}

// Trigger starts one background upload.
func (s *Scheduler) Trigger() {
	ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	switch err := s.uploader.Upload(ctx); {
	case err == nil:
		logger.Debug().Msg("Scheduled upload started")
	case errors.Is(err, ErrInProgress):
		logger.Debug().Msg("Scheduled upload skipped, previous upload still running")
	default:
		logger.Warn().Err(err).Msg("Scheduled upload not started")
	}
}

// Package scheduler drives the periodic work: engine ticks on one interval,
// lifecycle sweeps on a shorter one.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Engine is the per-tick pipeline.
type Engine interface {
	Tick(ctx context.Context) error
}

// Lifecycle is the sweep side. Expire runs before execute so an overdue row
// can never be executed by the same pass.
type Lifecycle interface {
	SweepExpire(ctx context.Context) (int64, error)
	SweepExecute(ctx context.Context) (int, error)
}

// Scheduler runs both loops in one goroutine; a slow tick delays the next
// rather than overlapping it, and sweeps can never run concurrently with
// each other.
type Scheduler struct {
	engine        Engine
	lifecycle     Lifecycle
	runInterval   time.Duration
	sweepInterval time.Duration
	log           zerolog.Logger
}

// New builds a Scheduler.
func New(engine Engine, lifecycle Lifecycle, runInterval, sweepInterval time.Duration, log zerolog.Logger) *Scheduler {
	if runInterval <= 0 {
		runInterval = 5 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Scheduler{
		engine:        engine,
		lifecycle:     lifecycle,
		runInterval:   runInterval,
		sweepInterval: sweepInterval,
		log:           log.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled. The first engine tick fires
// immediately so a fresh process does not idle for a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	runTicker := time.NewTicker(s.runInterval)
	defer runTicker.Stop()
	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()

	s.log.Info().
		Dur("run_interval", s.runInterval).
		Dur("sweep_interval", s.sweepInterval).
		Msg("scheduler started")

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-runTicker.C:
			s.tick(ctx)
		case <-sweepTicker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.engine.Tick(ctx); err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Msg("engine tick failed")
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.lifecycle.SweepExpire(ctx); err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Msg("expire sweep failed")
	}
	if _, err := s.lifecycle.SweepExecute(ctx); err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Msg("execute sweep failed")
	}
}

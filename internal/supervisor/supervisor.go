// Package supervisor keeps long-lived background jobs alive.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/metrics"
)

// Job is a supervised unit of work. Returning nil or an error both cause a
// restart after the backoff; only context cancellation ends supervision.
type Job func(ctx context.Context) error

// LoopSupervisor restarts jobs that exit or fail and records their health.
type LoopSupervisor struct {
	Metrics *metrics.Store
	Backoff time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewLoopSupervisor creates a LoopSupervisor. A zero backoff defaults to 5s.
func NewLoopSupervisor(store *metrics.Store, backoff time.Duration, logger zerolog.Logger) *LoopSupervisor {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &LoopSupervisor{
		Metrics: store,
		Backoff: backoff,
		logger:  logger.With().Str("component", "supervisor").Logger(),
	}
}

// Run blocks, running job under name until ctx is cancelled.
func (s *LoopSupervisor) Run(ctx context.Context, name string, job Job) error {
	log := s.logger.With().Str("loop", name).Logger()
	for {
		if err := ctx.Err(); err != nil {
			s.Metrics.LoopCancelled(name)
			return err
		}

		s.Metrics.LoopStarted(name)
		err := runOnce(ctx, job)

		switch {
		case ctx.Err() != nil:
			s.Metrics.LoopCancelled(name)
			log.Info().Msg("supervisor.loop_cancelled")
			return ctx.Err()
		case err == nil:
			s.Metrics.LoopExited(name)
			log.Warn().Dur("backoff", s.Backoff).Msg("supervisor.loop_exited")
		default:
			s.Metrics.LoopError(name, err)
			log.Error().Err(err).Dur("backoff", s.Backoff).Msg("supervisor.loop_failed")
		}

		timer := time.NewTimer(s.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.Metrics.LoopCancelled(name)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runOnce converts a panic inside job into an error.
func runOnce(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(ctx)
}

// Go runs Run in a tracked goroutine.
func (s *LoopSupervisor) Go(ctx context.Context, name string, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Run(ctx, name, job)
	}()
}

// Wait blocks until every job started with Go has returned.
func (s *LoopSupervisor) Wait() {
	s.wg.Wait()
}

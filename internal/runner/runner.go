// Package runner drives each world's tick loop and tracks the live runners.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/metrics"
)

// Runner advances one world on a fixed cadence until stopped.
type Runner struct {
	WorldID  string
	Interval time.Duration

	pipeline *Pipeline
	metrics  *metrics.Store
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	summaries []rollingSummary
}

// New creates a stopped Runner. A non-positive interval defaults to 5s.
func New(worldID string, p *Pipeline, store *metrics.Store, interval time.Duration, logger zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Runner{
		WorldID:  worldID,
		Interval: interval,
		pipeline: p,
		metrics:  store,
		log:      logger.With().Str("component", "runner").Str("world_id", worldID).Logger(),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop under a context derived from parent. Calling
// Start on a runner that has already been started does nothing.
func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.running = true
	r.metrics.RunnerStatus(r.WorldID, domain.RunnerStarting)
	go r.loop(ctx)
}

// Stop cancels the loop. It does not wait; use Done for that.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, running := r.cancel, r.running
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	if running {
		r.metrics.RunnerStatus(r.WorldID, domain.RunnerStopping)
	}
	cancel()
}

// Running reports whether the loop is still alive.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Done is closed when the loop has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) loop(ctx context.Context) {
	final := domain.RunnerStopped
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		r.metrics.RunnerStatus(r.WorldID, final)
		close(r.done)
	}()

	r.log.Info().Dur("interval", r.Interval).Msg("runner.start")
	r.metrics.RunnerStatus(r.WorldID, domain.RunnerRunning)

	var prevStart time.Time
	for {
		start := time.Now()
		var delay time.Duration
		if !prevStart.IsZero() {
			delay = start.Sub(prevStart.Add(r.Interval))
			if delay < 0 {
				delay = 0
			}
		}
		prevStart = start

		w, err := r.pipeline.Worlds.GetByID(ctx, r.pipeline.DB, r.WorldID)
		if errors.Is(err, domain.ErrWorldNotFound) {
			r.log.Error().Msg("runner.world_not_found")
			final = domain.RunnerMissingWorld
			return
		}

		var res TickResult
		if err == nil {
			res, err = r.pipeline.Tick(ctx, w, &r.summaries)
		}
		elapsed := time.Since(start)

		if ctx.Err() != nil {
			r.cancelled()
			return
		}

		r.metrics.RunnerTick(metrics.TickReport{WorldID: r.WorldID, OK: err == nil, Duration: elapsed, Delay: delay})
		if err != nil {
			r.log.Error().Err(err).Msg("runner.tick_failed")
		} else {
			r.log.Debug().
				Int("epoch", w.CurrentEpoch).
				Int("tick", w.CurrentTick).
				Dur("duration", elapsed).
				Int("messages", res.Messages).
				Int("claims", res.Claims).
				Int("events", res.Events).
				Int("posts", res.Posts).
				Bool("epoch_changed", res.EpochChanged).
				Int("wiki_pages", res.WikiPages).
				Int("claims_expired", res.Expired).
				Msg("runner.tick")
		}

		wait := r.Interval - elapsed
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.cancelled()
			return
		case <-timer.C:
		}
	}
}

func (r *Runner) cancelled() {
	r.log.Info().Msg("runner.cancelled")
	r.metrics.RunnerStatus(r.WorldID, domain.RunnerCancelled)
}

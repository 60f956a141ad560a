package oracle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// State is the scheduler's current phase, exposed for observability.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateProcessing
	StateSleeping
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateProcessing:
		return "processing"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Scheduler drives repeated scan/process cycles. One cycle runs to
// completion before the next starts; there are no overlapping cycles.
type Scheduler struct {
	scanner  *Scanner
	pipeline *Pipeline
	stats    *Stats

	interval time.Duration
	backoff  time.Duration
	limiter  *rate.Limiter // paces consecutive requests within a cycle

	state atomic.Int32
	log   zerolog.Logger
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Scanner  *Scanner
	Pipeline *Pipeline
	Stats    *Stats
	Interval time.Duration // between cycles, default 3s
	Backoff  time.Duration // after a failed cycle, default 4x interval
	// RequestDelay spaces consecutive submissions within a cycle to avoid
	// saturating the ledger transport. Default 500ms.
	RequestDelay time.Duration
	Logger       zerolog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("scanner required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	if cfg.Stats == nil {
		return nil, fmt.Errorf("stats required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 4 * cfg.Interval
	}
	if cfg.RequestDelay == 0 {
		cfg.RequestDelay = 500 * time.Millisecond
	}

	return &Scheduler{
		scanner:  cfg.Scanner,
		pipeline: cfg.Pipeline,
		stats:    cfg.Stats,
		interval: cfg.Interval,
		backoff:  cfg.Backoff,
		limiter:  rate.NewLimiter(rate.Every(cfg.RequestDelay), 1),
		log:      cfg.Logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// State returns the current scheduler state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run executes scan/process cycles until ctx is cancelled. An in-flight
// submission finishes (or times out) before Run returns; per-request and
// per-cycle errors never terminate the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	defer s.state.Store(int32(StateStopped))

	for {
		sleep := s.interval
		if err := s.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info().Msg("scheduler stopped")
				return ctx.Err()
			}
			s.stats.IncErrors()
			s.log.Error().Err(err).Dur("backoff", s.backoff).Msg("cycle failed, backing off")
			sleep = s.backoff
		}

		s.state.Store(int32(StateSleeping))
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// cycle runs one scan followed by sequential processing of the results.
func (s *Scheduler) cycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	log := s.log.With().Str("cycle", cycleID).Logger()

	s.state.Store(int32(StateScanning))
	pending, err := s.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	log.Info().Int("pending", len(pending)).Msg("processing pending requests")
	s.state.Store(int32(StateProcessing))

	fulfilled := 0
	for _, req := range pending {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		// Per-request failures are already counted and logged by the
		// pipeline; the cycle carries on with the remaining requests.
		// Quarantine skips return no error and do not count as fulfilled.
		if ok, err := s.pipeline.Fulfill(ctx, req); err == nil && ok {
			fulfilled++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	log.Info().Int("fulfilled", fulfilled).Int("pending", len(pending)).Msg("cycle complete")
	return nil
}

package oracle

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats accumulates process-lifetime counters. Best-effort observability,
// never a correctness mechanism. Not persisted across restarts.
type Stats struct {
	mu        sync.Mutex
	startTime time.Time
	processed uint64
	fulfilled uint64
	errors    uint64

	processedCtr prometheus.Counter
	fulfilledCtr prometheus.Counter
	errorsCtr    prometheus.Counter
}

// StatsSnapshot is a point-in-time view for reporting.
type StatsSnapshot struct {
	StartTime time.Time
	Uptime    time.Duration
	Processed uint64
	Fulfilled uint64
	Errors    uint64
}

// NewStats creates a tracker starting its uptime clock at start.
func NewStats(start time.Time) *Stats {
	return &Stats{
		startTime: start,
		processedCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vrf_oracle_requests_processed_total",
			Help: "Fulfillment attempts started",
		}),
		fulfilledCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vrf_oracle_requests_fulfilled_total",
			Help: "Fulfillment transactions confirmed",
		}),
		errorsCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vrf_oracle_errors_total",
			Help: "Per-request and per-cycle failures",
		}),
	}
}

// Register registers the counters with a Prometheus registry.
func (s *Stats) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.processedCtr, s.fulfilledCtr, s.errorsCtr} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncProcessed counts a fulfillment attempt.
func (s *Stats) IncProcessed() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
	s.processedCtr.Inc()
}

// IncFulfilled counts a confirmed fulfillment.
func (s *Stats) IncFulfilled() {
	s.mu.Lock()
	s.fulfilled++
	s.mu.Unlock()
	s.fulfilledCtr.Inc()
}

// IncErrors counts a failure.
func (s *Stats) IncErrors() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
	s.errorsCtr.Inc()
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		StartTime: s.startTime,
		Uptime:    now.Sub(s.startTime),
		Processed: s.processed,
		Fulfilled: s.fulfilled,
		Errors:    s.errors,
	}
}

package oracle

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCounters(t *testing.T) {
	start := time.Now()
	stats := NewStats(start)

	stats.IncProcessed()
	stats.IncProcessed()
	stats.IncFulfilled()
	stats.IncErrors()

	snap := stats.Snapshot(start.Add(time.Minute))
	assert.Equal(t, uint64(2), snap.Processed)
	assert.Equal(t, uint64(1), snap.Fulfilled)
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Equal(t, time.Minute, snap.Uptime)
	assert.Equal(t, start, snap.StartTime)
}

func TestStatsRegister(t *testing.T) {
	stats := NewStats(time.Now())
	reg := prometheus.NewRegistry()
	require.NoError(t, stats.Register(reg))

	stats.IncFulfilled()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "vrf_oracle_requests_fulfilled_total")
}

package oracle

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kamui-network/vrf-oracle/internal/chain"
)

// DefaultDedupWindow is how long a processed request stays ineligible before
// it may be re-checked. Bounds staleness without external confirmation of
// terminal state.
const DefaultDedupWindow = 10 * time.Minute

// ProcessingRecord captures one fulfillment attempt for a request address.
type ProcessingRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Seed         []byte    `json:"seed"`
	RequestID    []byte    `json:"request_id"`
	PoolID       byte      `json:"pool_id"`
	RequestIndex uint32    `json:"request_index"`
	Proof        []byte    `json:"proof"`
	Output       []byte    `json:"output"`
}

// DedupLedger suppresses duplicate fulfillment submissions from a single
// oracle process. It does not coordinate across concurrent oracle instances.
// Single-writer: all mutation goes through the mutex.
type DedupLedger struct {
	mu      sync.Mutex
	window  time.Duration
	records map[chain.Address]ProcessingRecord
}

// NewDedupLedger creates a ledger with the given re-check window.
// A zero window selects DefaultDedupWindow.
func NewDedupLedger(window time.Duration) *DedupLedger {
	if window == 0 {
		window = DefaultDedupWindow
	}
	return &DedupLedger{
		window:  window,
		records: make(map[chain.Address]ProcessingRecord),
	}
}

// IsEligible reports whether addr may be processed at time now. A record
// older than the window is evicted as a side effect, re-opening the address.
func (l *DedupLedger) IsEligible(addr chain.Address, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[addr]
	if !ok {
		return true
	}
	if now.Sub(rec.Timestamp) < l.window {
		return false
	}
	delete(l.records, addr)
	return true
}

// Record stores a processing record for addr.
func (l *DedupLedger) Record(addr chain.Address, rec ProcessingRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[addr] = rec
}

// EvictStale removes all records older than the window and returns how many
// were evicted.
func (l *DedupLedger) EvictStale(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for addr, rec := range l.records {
		if now.Sub(rec.Timestamp) >= l.window {
			delete(l.records, addr)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live records.
func (l *DedupLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// =============================================================================
// Persistence
// =============================================================================

// Snapshot returns a copy of all records keyed by base58 address.
func (l *DedupLedger) Snapshot() map[string]ProcessingRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]ProcessingRecord, len(l.records))
	for addr, rec := range l.records {
		out[addr.String()] = rec
	}
	return out
}

// SaveFile writes the ledger to path as JSON so a restarted oracle keeps its
// dedup state.
func (l *DedupLedger) SaveFile(path string) error {
	data, err := json.MarshalIndent(l.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dedup state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write dedup state: %w", err)
	}
	return nil
}

// LoadFile restores records from a SaveFile snapshot, dropping entries that
// are already stale at time now. A missing file is not an error.
func (l *DedupLedger) LoadFile(path string, now time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dedup state: %w", err)
	}

	var snapshot map[string]ProcessingRecord
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parse dedup state: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, rec := range snapshot {
		if now.Sub(rec.Timestamp) >= l.window {
			continue
		}
		addr, err := chain.AddressFromBase58(key)
		if err != nil {
			return fmt.Errorf("dedup state key %q: %w", key, err)
		}
		l.records[addr] = rec
	}
	return nil
}

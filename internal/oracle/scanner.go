package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kamui-network/vrf-oracle/internal/chain"
)

// LedgerReader is the read side of the ledger used by the scanner.
type LedgerReader interface {
	ListProgramAccounts(ctx context.Context, programID chain.Address) ([]chain.Account, error)
}

// Scanner discovers pending, eligible randomness requests.
type Scanner struct {
	reader    LedgerReader
	ledger    *DedupLedger
	programID chain.Address
	log       zerolog.Logger
	now       func() time.Time
}

// ScannerConfig holds scanner configuration.
type ScannerConfig struct {
	Reader    LedgerReader
	Dedup     *DedupLedger
	ProgramID chain.Address
	Logger    zerolog.Logger
	Now       func() time.Time // test hook, defaults to time.Now
}

// NewScanner creates a scanner.
func NewScanner(cfg ScannerConfig) (*Scanner, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("ledger reader required")
	}
	if cfg.Dedup == nil {
		return nil, fmt.Errorf("dedup ledger required")
	}
	if cfg.ProgramID.IsZero() {
		return nil, fmt.Errorf("program ID required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scanner{
		reader:    cfg.Reader,
		ledger:    cfg.Dedup,
		programID: cfg.ProgramID,
		log:       cfg.Logger.With().Str("component", "scanner").Logger(),
		now:       cfg.Now,
	}, nil
}

// Scan enumerates program-owned records and returns the pending requests
// that are eligible for processing. Decode failures and non-request records
// are skipped silently; enumeration order carries no guarantee.
func (s *Scanner) Scan(ctx context.Context) ([]RandomnessRequest, error) {
	accounts, err := s.reader.ListProgramAccounts(ctx, s.programID)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	now := s.now()
	var pending []RandomnessRequest
	for _, acct := range accounts {
		req, err := DecodeRequest(acct.Address, acct.Data)
		if err != nil {
			if errors.Is(err, ErrMalformedRecord) {
				s.log.Debug().Str("account", acct.Address.String()).Int("len", len(acct.Data)).Msg("skipping malformed record")
			}
			continue
		}
		if req.Status != StatusPending {
			continue
		}
		if !s.ledger.IsEligible(req.Address, now) {
			continue
		}
		pending = append(pending, *req)
	}

	s.log.Debug().Int("accounts", len(accounts)).Int("pending", len(pending)).Msg("scan complete")
	return pending, nil
}

package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kamui-network/vrf-oracle/internal/chain"
	"github.com/kamui-network/vrf-oracle/internal/vrf"
)

// DefaultInvalidProofCap is how many verification failures a single request
// address may accumulate before the pipeline stops retrying it and raises an
// operator alert. Repeated invalid proofs for one seed mean a service or key
// mismatch, not a transient fault.
const DefaultInvalidProofCap = 3

// TransactionSender is the write side of the ledger used by the pipeline.
type TransactionSender interface {
	LatestBlockhash(ctx context.Context) (chain.Blockhash, error)
	SendAndConfirm(ctx context.Context, tx *chain.Transaction) (chain.Signature, error)
}

// Pipeline turns one pending request into one confirmed fulfillment
// transaction: prove, verify, derive, encode, submit, record.
type Pipeline struct {
	prover vrf.Prover
	sender TransactionSender
	ledger *DedupLedger
	stats  *Stats

	signer      *chain.Keypair
	programID   chain.Address
	callTimeout time.Duration

	mu              sync.Mutex
	invalidProofs   map[chain.Address]int
	invalidProofCap int

	log zerolog.Logger
	now func() time.Time
}

// PipelineConfig holds pipeline configuration.
type PipelineConfig struct {
	Prover          vrf.Prover
	Sender          TransactionSender
	Dedup           *DedupLedger
	Stats           *Stats
	Signer          *chain.Keypair
	ProgramID       chain.Address
	CallTimeout     time.Duration // per collaborator call, default 30s
	InvalidProofCap int           // default DefaultInvalidProofCap
	Logger          zerolog.Logger
	Now             func() time.Time // test hook, defaults to time.Now
}

// NewPipeline creates a fulfillment pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Prover == nil {
		return nil, fmt.Errorf("prover required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("transaction sender required")
	}
	if cfg.Dedup == nil {
		return nil, fmt.Errorf("dedup ledger required")
	}
	if cfg.Stats == nil {
		return nil, fmt.Errorf("stats required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signing identity required")
	}
	if cfg.ProgramID.IsZero() {
		return nil, fmt.Errorf("program ID required")
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.InvalidProofCap == 0 {
		cfg.InvalidProofCap = DefaultInvalidProofCap
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{
		prover:          cfg.Prover,
		sender:          cfg.Sender,
		ledger:          cfg.Dedup,
		stats:           cfg.Stats,
		signer:          cfg.Signer,
		programID:       cfg.ProgramID,
		callTimeout:     cfg.CallTimeout,
		invalidProofs:   make(map[chain.Address]int),
		invalidProofCap: cfg.InvalidProofCap,
		log:             cfg.Logger.With().Str("component", "pipeline").Logger(),
		now:             cfg.Now,
	}, nil
}

// Fulfill processes one pending request. The boolean reports whether a
// fulfillment was actually submitted and recorded; a quarantined request is
// skipped with (false, nil). On any failure nothing is recorded and the
// request stays eligible for a later cycle.
func (p *Pipeline) Fulfill(ctx context.Context, r RandomnessRequest) (bool, error) {
	log := p.log.With().
		Str("request", r.Address.String()).
		Uint8("pool_id", r.PoolID).
		Uint32("request_index", r.RequestIndex).
		Logger()

	if p.quarantined(r.Address) {
		log.Debug().Msg("request quarantined after repeated invalid proofs, skipping")
		return false, nil
	}

	p.stats.IncProcessed()

	proof, err := p.generateProof(ctx, r)
	if err != nil {
		p.stats.IncErrors()
		log.Error().Err(err).Msg("proof generation failed")
		return false, err
	}

	valid, err := p.verifyProof(ctx, proof, r)
	if err != nil {
		p.stats.IncErrors()
		log.Error().Err(err).Msg("proof verification errored")
		return false, err
	}
	if !valid {
		p.stats.IncErrors()
		p.recordInvalidProof(r.Address, log)
		return false, fmt.Errorf("request %s: %w", r.Address, ErrProofInvalid)
	}

	sig, err := p.submit(ctx, r, proof)
	if err != nil {
		p.stats.IncErrors()
		log.Error().Err(err).Msg("fulfillment submission failed")
		return false, &SubmissionError{Err: err}
	}

	p.ledger.Record(r.Address, ProcessingRecord{
		Timestamp:    p.now(),
		Seed:         r.Seed[:],
		RequestID:    r.RequestID[:],
		PoolID:       r.PoolID,
		RequestIndex: r.RequestIndex,
		Proof:        proof.Proof,
		Output:       proof.Output,
	})
	p.stats.IncFulfilled()

	log.Info().Str("signature", string(sig)).Msg("request fulfilled")
	return true, nil
}

func (p *Pipeline) generateProof(ctx context.Context, r RandomnessRequest) (vrf.Proof, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.prover.GenerateProof(ctx, r.Seed[:])
}

func (p *Pipeline) verifyProof(ctx context.Context, proof vrf.Proof, r RandomnessRequest) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.prover.VerifyProof(ctx, proof.Proof, proof.Output, p.prover.PublicKey(), r.Seed[:])
}

// submit encodes the payload, derives dependent addresses and sends the
// fulfillment transaction.
func (p *Pipeline) submit(ctx context.Context, r RandomnessRequest, proof vrf.Proof) (chain.Signature, error) {
	data, err := EncodeFulfillment(FulfillmentPayload{
		Proof:        proof.Proof,
		PublicKey:    p.prover.PublicKey(),
		RequestID:    r.RequestID,
		PoolID:       r.PoolID,
		RequestIndex: r.RequestIndex,
	})
	if err != nil {
		return "", err
	}

	poolAddr := RequestPoolAddress(r.Subscription, r.PoolID, p.programID)
	resultAddr := ResultAddress(r.Address, p.programID)

	// Reference order is part of the external protocol; the program resolves
	// them positionally.
	ix := chain.Instruction{
		ProgramID: p.programID,
		Accounts: []chain.AccountMeta{
			chain.MetaSigner(p.signer.Address),
			chain.Meta(r.Address),
			chain.Meta(resultAddr),
			chain.Meta(poolAddr),
			chain.Meta(r.Subscription),
			chain.MetaReadonly(chain.SystemProgram),
		},
		Data: data,
	}

	// A shutdown signal must not abort a transaction that may already have
	// reached the ledger, so the ledger calls run detached from the caller's
	// cancellation and are bounded by the call timeout alone.
	base := context.WithoutCancel(ctx)

	callCtx, cancel := context.WithTimeout(base, p.callTimeout)
	defer cancel()

	blockhash, err := p.sender.LatestBlockhash(callCtx)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	tx := chain.NewTransaction(ix, p.signer.Address, blockhash)
	if err := tx.Sign(p.signer); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(base, p.callTimeout)
	defer cancel()
	return p.sender.SendAndConfirm(sendCtx, tx)
}

// =============================================================================
// Invalid-Proof Quarantine
// =============================================================================

func (p *Pipeline) quarantined(addr chain.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalidProofs[addr] >= p.invalidProofCap
}

func (p *Pipeline) recordInvalidProof(addr chain.Address, log zerolog.Logger) {
	p.mu.Lock()
	p.invalidProofs[addr]++
	count := p.invalidProofs[addr]
	p.mu.Unlock()

	if count >= p.invalidProofCap {
		log.Error().Int("failures", count).
			Msg("proof invalid repeatedly, quarantining request; check prover key material")
		return
	}
	log.Warn().Int("failures", count).Msg("proof failed verification")
}

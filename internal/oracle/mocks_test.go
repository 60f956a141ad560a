package oracle

import (
	"context"
	"sync"

	"github.com/kamui-network/vrf-oracle/internal/chain"
	"github.com/kamui-network/vrf-oracle/internal/vrf"
)

// fakeProver is a test Prover with scriptable results.
type fakeProver struct {
	mu          sync.Mutex
	proof       []byte
	output      []byte
	publicKey   []byte
	generateErr error
	verifyOK    bool
	verifyErr   error

	generateCalls int
	verifyCalls   int
}

func newFakeProver() *fakeProver {
	return &fakeProver{
		proof:     []byte("proof-bytes"),
		output:    []byte("output-bytes"),
		publicKey: []byte("public-key"),
		verifyOK:  true,
	}
}

func (f *fakeProver) GenerateProof(_ context.Context, _ []byte) (vrf.Proof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	if f.generateErr != nil {
		return vrf.Proof{}, f.generateErr
	}
	return vrf.Proof{Proof: f.proof, Output: f.output}, nil
}

func (f *fakeProver) VerifyProof(_ context.Context, _, _, _, _ []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	return f.verifyOK, f.verifyErr
}

func (f *fakeProver) PublicKey() []byte {
	return f.publicKey
}

// fakeLedger is a test LedgerReader and TransactionSender.
type fakeLedger struct {
	mu       sync.Mutex
	accounts []chain.Account
	listErr  error

	blockhashErr error
	sendErr      error
	sent         []*chain.Transaction
}

func (f *fakeLedger) ListProgramAccounts(_ context.Context, _ chain.Address) ([]chain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]chain.Account(nil), f.accounts...), nil
}

func (f *fakeLedger) LatestBlockhash(_ context.Context) (chain.Blockhash, error) {
	if f.blockhashErr != nil {
		return chain.Blockhash{}, f.blockhashErr
	}
	return chain.Blockhash{0xbb}, nil
}

func (f *fakeLedger) SendAndConfirm(_ context.Context, tx *chain.Transaction) (chain.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, tx)
	return "test-signature", nil
}

func (f *fakeLedger) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// blockingSender parks in SendAndConfirm until released, recording the
// context state it observed on the way out.
type blockingSender struct {
	started    chan struct{}
	release    chan struct{}
	sendCtxErr error
}

func newBlockingSender() *blockingSender {
	return &blockingSender{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *blockingSender) LatestBlockhash(_ context.Context) (chain.Blockhash, error) {
	return chain.Blockhash{0xbb}, nil
}

func (s *blockingSender) SendAndConfirm(ctx context.Context, _ *chain.Transaction) (chain.Signature, error) {
	close(s.started)
	select {
	case <-ctx.Done():
		s.sendCtxErr = ctx.Err()
		return "", ctx.Err()
	case <-s.release:
		s.sendCtxErr = ctx.Err()
		return "test-signature", nil
	}
}

// testKeypair returns a deterministic signing identity for tests.
func testKeypair() *chain.Keypair {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return chain.KeypairFromSeed(seed)
}

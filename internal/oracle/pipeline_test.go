package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamui-network/vrf-oracle/internal/chain"
)

func newTestPipeline(t *testing.T, prover *fakeProver, ledger *fakeLedger) (*Pipeline, *DedupLedger, *Stats) {
	t.Helper()
	dedup := NewDedupLedger(10 * time.Minute)
	stats := NewStats(time.Now())
	p, err := NewPipeline(PipelineConfig{
		Prover:    prover,
		Sender:    ledger,
		Dedup:     dedup,
		Stats:     stats,
		Signer:    testKeypair(),
		ProgramID: testAddr(0x50),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return p, dedup, stats
}

func TestFulfillSuccess(t *testing.T) {
	prover := newFakeProver()
	ledger := &fakeLedger{}
	p, dedup, stats := newTestPipeline(t, prover, ledger)
	req := testRequest()

	ok, err := p.Fulfill(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)

	// Exactly one submission, recorded and counted.
	assert.Equal(t, 1, ledger.sendCount())
	assert.False(t, dedup.IsEligible(req.Address, time.Now()))

	snap := stats.Snapshot(time.Now())
	assert.Equal(t, uint64(1), snap.Processed)
	assert.Equal(t, uint64(1), snap.Fulfilled)
	assert.Equal(t, uint64(0), snap.Errors)
}

func TestFulfillTransactionShape(t *testing.T) {
	prover := newFakeProver()
	ledger := &fakeLedger{}
	p, _, _ := newTestPipeline(t, prover, ledger)
	req := testRequest()

	_, err := p.Fulfill(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, ledger.sent, 1)
	tx := ledger.sent[0]

	programID := testAddr(0x50)
	signer := testKeypair().Address

	// Six references in protocol order.
	metas := tx.Instruction.Accounts
	require.Len(t, metas, 6)
	assert.Equal(t, chain.MetaSigner(signer), metas[0])
	assert.Equal(t, chain.Meta(req.Address), metas[1])
	assert.Equal(t, chain.Meta(ResultAddress(req.Address, programID)), metas[2])
	assert.Equal(t, chain.Meta(RequestPoolAddress(req.Subscription, req.PoolID, programID)), metas[3])
	assert.Equal(t, chain.Meta(req.Subscription), metas[4])
	assert.Equal(t, chain.MetaReadonly(chain.SystemProgram), metas[5])

	payload, err := DecodeFulfillment(tx.Instruction.Data)
	require.NoError(t, err)
	assert.Equal(t, prover.proof, payload.Proof)
	assert.Equal(t, prover.publicKey, payload.PublicKey)
	assert.Equal(t, req.RequestID, payload.RequestID)
	assert.Equal(t, req.PoolID, payload.PoolID)
	assert.Equal(t, req.RequestIndex, payload.RequestIndex)
}

func TestFulfillProofGenerationFailure(t *testing.T) {
	prover := newFakeProver()
	prover.generateErr = errors.New("tool crashed")
	ledger := &fakeLedger{}
	p, dedup, stats := newTestPipeline(t, prover, ledger)
	req := testRequest()

	ok, err := p.Fulfill(context.Background(), req)
	require.Error(t, err)
	assert.False(t, ok)

	// Nothing submitted, nothing recorded: request stays eligible.
	assert.Equal(t, 0, ledger.sendCount())
	assert.True(t, dedup.IsEligible(req.Address, time.Now()))
	assert.Equal(t, uint64(1), stats.Snapshot(time.Now()).Errors)
}

func TestFulfillInvalidProof(t *testing.T) {
	prover := newFakeProver()
	prover.verifyOK = false
	ledger := &fakeLedger{}
	p, dedup, stats := newTestPipeline(t, prover, ledger)
	req := testRequest()

	_, err := p.Fulfill(context.Background(), req)
	require.ErrorIs(t, err, ErrProofInvalid)

	assert.Equal(t, 0, ledger.sendCount(), "invalid proof must never be submitted")
	assert.True(t, dedup.IsEligible(req.Address, time.Now()), "failed request must not enter the dedup ledger")
	assert.Equal(t, uint64(1), stats.Snapshot(time.Now()).Errors)
}

func TestFulfillInvalidProofQuarantine(t *testing.T) {
	prover := newFakeProver()
	prover.verifyOK = false
	ledger := &fakeLedger{}
	p, _, stats := newTestPipeline(t, prover, ledger)
	req := testRequest()

	for i := 0; i < DefaultInvalidProofCap; i++ {
		_, err := p.Fulfill(context.Background(), req)
		require.ErrorIs(t, err, ErrProofInvalid)
	}
	generateCallsBefore := prover.generateCalls

	// Past the cap the request is skipped without further prover calls or
	// error counting, and the skip is not reported as a fulfillment.
	ok, err := p.Fulfill(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, generateCallsBefore, prover.generateCalls)
	assert.Equal(t, uint64(DefaultInvalidProofCap), stats.Snapshot(time.Now()).Errors)
	assert.Equal(t, 0, ledger.sendCount())
}

func TestFulfillSubmissionFailure(t *testing.T) {
	prover := newFakeProver()
	ledger := &fakeLedger{sendErr: errors.New("node unavailable")}
	p, dedup, stats := newTestPipeline(t, prover, ledger)
	req := testRequest()

	_, err := p.Fulfill(context.Background(), req)
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)

	assert.True(t, dedup.IsEligible(req.Address, time.Now()), "no record written on failure")
	snap := stats.Snapshot(time.Now())
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Equal(t, uint64(0), snap.Fulfilled)
}

func TestFulfillBlockhashFailure(t *testing.T) {
	prover := newFakeProver()
	ledger := &fakeLedger{blockhashErr: errors.New("timeout")}
	p, dedup, _ := newTestPipeline(t, prover, ledger)
	req := testRequest()

	_, err := p.Fulfill(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, ledger.sendCount())
	assert.True(t, dedup.IsEligible(req.Address, time.Now()))
}

func TestFulfillSubmissionSurvivesShutdownSignal(t *testing.T) {
	prover := newFakeProver()
	sender := newBlockingSender()
	dedup := NewDedupLedger(10 * time.Minute)
	stats := NewStats(time.Now())
	p, err := NewPipeline(PipelineConfig{
		Prover:    prover,
		Sender:    sender,
		Dedup:     dedup,
		Stats:     stats,
		Signer:    testKeypair(),
		ProgramID: testAddr(0x50),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	req := testRequest()

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := p.Fulfill(ctx, req)
		done <- result{ok, err}
	}()

	// Cancel while the send is in flight; the submission must keep running
	// under its own timeout rather than abort mid-transaction.
	<-sender.started
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(sender.release)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.True(t, res.ok)
	case <-time.After(time.Second):
		t.Fatal("fulfillment did not finish")
	}

	assert.NoError(t, sender.sendCtxErr, "shutdown cancelled an in-flight submission")
	assert.False(t, dedup.IsEligible(req.Address, time.Now()), "completed submission must be recorded")
}

func TestFulfillIdempotentWithinWindow(t *testing.T) {
	prover := newFakeProver()
	ledger := &fakeLedger{}
	p, dedup, _ := newTestPipeline(t, prover, ledger)
	req := testRequest()

	scanner, err := NewScanner(ScannerConfig{
		Reader:    &fakeLedger{accounts: []chain.Account{{Address: req.Address, Data: buildRequestRecord(req)}}},
		Dedup:     dedup,
		ProgramID: testAddr(0x50),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	// First scan finds the request; fulfilling it records the address.
	pending, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = p.Fulfill(context.Background(), pending[0])
	require.NoError(t, err)

	// A second scan within the window excludes it: exactly one submission.
	pending, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, ledger.sendCount())
}

// Package vrf integrates the external ECVRF proving tool.
//
// The oracle never computes VRF proofs itself: proofs come from a standalone
// CLI binary invoked per request. This package owns the subprocess contract,
// its stdout parsing, and keypair management.
package vrf

import (
	"context"
	"fmt"
)

// Proof is a generated randomness proof for one seed.
type Proof struct {
	Proof  []byte
	Output []byte
}

// Prover produces and verifies randomness proofs.
type Prover interface {
	// GenerateProof produces a proof and output for seed.
	GenerateProof(ctx context.Context, seed []byte) (Proof, error)
	// VerifyProof checks a (proof, output, publicKey, seed) tuple.
	VerifyProof(ctx context.Context, proof, output, publicKey, seed []byte) (bool, error)
	// PublicKey returns the proving public key, stable for process lifetime.
	PublicKey() []byte
}

// GenerationError reports a proving tool/process failure. Generation errors
// are transient: the request stays eligible for a later cycle.
type GenerationError struct {
	Stage string // keygen, prove, verify
	Err   error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("vrf %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

package oracle

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord reports a record too short for its declared layout.
// Not every program-owned object is a request, so scanners skip these.
var ErrMalformedRecord = errors.New("malformed record")

// ErrTagMismatch reports a record whose discriminator is not the
// pending-request tag. Such records are ignored, never treated as failures.
var ErrTagMismatch = errors.New("record tag mismatch")

// ErrProofInvalid reports a proof that failed verification. Repeated invalid
// proofs for one seed indicate a service or key mismatch rather than a
// transient fault, so the pipeline caps retries per request.
var ErrProofInvalid = errors.New("proof failed verification")

// PayloadTooLargeError reports a fulfillment blob whose length is not
// representable in 32 bits. Fatal to that request only.
type PayloadTooLargeError struct {
	Field string
	Len   int
}

// Error implements the error interface.
func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload too large: %s is %d bytes", e.Field, e.Len)
}

// SubmissionError reports a ledger rejection or submission timeout. The
// request stays eligible for a later cycle.
type SubmissionError struct {
	Err error
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Package chain provides ledger interaction for the VRF oracle.
package chain

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// =============================================================================
// Addresses, Hashes, Signatures
// =============================================================================

// AddressLen is the byte length of a ledger address.
const AddressLen = 32

// Address is a 32-byte ledger account address.
type Address [AddressLen]byte

// AddressFromBase58 parses a base58-encoded address.
func AddressFromBase58(s string) (Address, error) {
	var a Address
	raw := base58.Decode(s)
	if len(raw) != AddressLen {
		return a, fmt.Errorf("address %q: expected %d bytes, got %d", s, AddressLen, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// AddressFromBytes copies raw into an Address.
func AddressFromBytes(raw []byte) (Address, error) {
	var a Address
	if len(raw) != AddressLen {
		return a, fmt.Errorf("address: expected %d bytes, got %d", AddressLen, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns the raw 32 bytes.
func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero reports whether the address is all zero bytes.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Blockhash is a recent ledger blockhash used to anchor a transaction.
type Blockhash [32]byte

// String returns the base58 form.
func (h Blockhash) String() string {
	return base58.Encode(h[:])
}

// Signature is a transaction signature as returned by the ledger.
type Signature string

// SystemProgram is the no-op system reference named by fulfillment
// transactions. All-zero by ledger convention.
var SystemProgram = Address{}

// =============================================================================
// Accounts
// =============================================================================

// Account is a program-owned state object: an address and its raw bytes.
type Account struct {
	Address Address
	Data    []byte
}

// =============================================================================
// JSON-RPC wire types
// =============================================================================

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
	ID      int    `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

package oracle

import (
	"crypto/sha256"

	"github.com/kamui-network/vrf-oracle/internal/chain"
)

// Derivation namespace tags. Part of the external protocol: the on-ledger
// program derives the same addresses from the same tags.
var (
	requestPoolTag = []byte("request_pool")
	resultTag      = []byte("vrf_result")
)

// deriveMarker domain-separates derived addresses from other hashes.
var deriveMarker = []byte("derived_address")

// Derive computes a deterministic address from a namespace tag, ordered seed
// parts, and the owning program ID. Pure: no network, no side effects.
func Derive(tag []byte, parts [][]byte, programID chain.Address) chain.Address {
	h := sha256.New()
	h.Write(tag)
	for _, p := range parts {
		h.Write(p)
	}
	h.Write(programID.Bytes())
	h.Write(deriveMarker)

	var addr chain.Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// RequestPoolAddress derives the pool account for (subscription, poolID).
// Pool IDs are scoped per subscription, so both feed the derivation.
func RequestPoolAddress(subscription chain.Address, poolID byte, programID chain.Address) chain.Address {
	return Derive(requestPoolTag, [][]byte{subscription.Bytes(), {poolID}}, programID)
}

// ResultAddress derives the result account for a request.
func ResultAddress(request chain.Address, programID chain.Address) chain.Address {
	return Derive(resultTag, [][]byte{request.Bytes()}, programID)
}

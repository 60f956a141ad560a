// Package oracle implements the VRF fulfillment core: request decoding,
// address derivation, duplicate suppression, scanning, and the
// proof-to-transaction pipeline.
package oracle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kamui-network/vrf-oracle/internal/chain"
)

// =============================================================================
// Record Tags
// =============================================================================

// TagLen is the width of a record discriminator.
const TagLen = 8

var (
	// RequestTag marks a pending-request record.
	RequestTag = [TagLen]byte{'R', 'E', 'Q', 'U', 'E', 'S', 'T', 0}
	// FulfillTag marks an outbound fulfillment payload.
	FulfillTag = [TagLen]byte{'F', 'U', 'L', 'F', 'I', 'L', 'L', 0}
)

// =============================================================================
// Request Model
// =============================================================================

// RequestStatus is the lifecycle state of a randomness request. Transitions
// only ever leave Pending; the oracle acts on Pending alone.
type RequestStatus uint8

const (
	StatusPending   RequestStatus = 0
	StatusFulfilled RequestStatus = 1
	StatusCancelled RequestStatus = 2
	StatusExpired   RequestStatus = 3
)

// String returns a human-readable status name.
func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// RandomnessRequest is the decoded view of an on-ledger request record.
type RandomnessRequest struct {
	Address          chain.Address
	Subscription     chain.Address
	Seed             [32]byte
	Requester        chain.Address
	CallbackData     []byte
	RequestSlot      uint64
	Status           RequestStatus
	NumWords         uint32
	CallbackGasLimit uint64
	PoolID           byte
	RequestIndex     uint32
	RequestID        [32]byte
}

// FulfillmentPayload is the outbound instruction data for one fulfillment.
type FulfillmentPayload struct {
	Proof        []byte
	PublicKey    []byte
	RequestID    [32]byte
	PoolID       byte
	RequestIndex uint32
}

// =============================================================================
// Record Schema
// =============================================================================

// fieldKind selects how a field's extent is known.
type fieldKind int

const (
	fieldFixed       fieldKind = iota // width bytes
	fieldLenPrefixed                  // u32 LE length, then that many bytes
)

// fieldDesc describes one field of a record after the discriminator.
type fieldDesc struct {
	name  string
	kind  fieldKind
	width int // fixed fields only
}

// requestSchema is the pending-request layout after the 8-byte tag. The
// decoder walks this list with a single cursor, so offsets are never
// hand-computed; inserting a field updates every later offset automatically.
var requestSchema = []fieldDesc{
	{name: "subscription", kind: fieldFixed, width: 32},
	{name: "seed", kind: fieldFixed, width: 32},
	{name: "requester", kind: fieldFixed, width: 32},
	{name: "callback_data", kind: fieldLenPrefixed},
	{name: "request_slot", kind: fieldFixed, width: 8},
	{name: "status", kind: fieldFixed, width: 1},
	{name: "num_words", kind: fieldFixed, width: 4},
	{name: "callback_gas_limit", kind: fieldFixed, width: 8},
	{name: "pool_id", kind: fieldFixed, width: 1},
	{name: "request_index", kind: fieldFixed, width: 4},
	{name: "request_id", kind: fieldFixed, width: 32},
}

// requestFixedPrefix is the minimum record size: tag plus the three leading
// 32-byte fields. Anything shorter cannot be a request.
const requestFixedPrefix = TagLen + 32 + 32 + 32

// cursor is a bounds-checked reader over a raw record.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrMalformedRecord, n, c.off, len(c.buf))
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// readRecord walks a schema over raw bytes, returning each field's raw slice.
func readRecord(schema []fieldDesc, raw []byte) (map[string][]byte, error) {
	c := &cursor{buf: raw}
	fields := make(map[string][]byte, len(schema))
	for _, f := range schema {
		switch f.kind {
		case fieldFixed:
			b, err := c.take(f.width)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.name, err)
			}
			fields[f.name] = b
		case fieldLenPrefixed:
			n, err := c.u32()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.name, err)
			}
			b, err := c.take(int(n))
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.name, err)
			}
			fields[f.name] = b
		}
	}
	return fields, nil
}

// =============================================================================
// Decoding
// =============================================================================

// DecodeRequest decodes a raw program-owned record into a RandomnessRequest.
// Returns ErrTagMismatch for records that are not requests and
// ErrMalformedRecord for requests whose layout does not fit the buffer.
func DecodeRequest(addr chain.Address, raw []byte) (*RandomnessRequest, error) {
	if len(raw) < TagLen {
		return nil, fmt.Errorf("%w: %d bytes, below tag width", ErrMalformedRecord, len(raw))
	}
	if !bytes.Equal(raw[:TagLen], RequestTag[:]) {
		return nil, ErrTagMismatch
	}
	if len(raw) < requestFixedPrefix {
		return nil, fmt.Errorf("%w: %d bytes, below fixed prefix %d", ErrMalformedRecord, len(raw), requestFixedPrefix)
	}

	fields, err := readRecord(requestSchema, raw[TagLen:])
	if err != nil {
		return nil, err
	}

	r := &RandomnessRequest{
		Address:          addr,
		RequestSlot:      binary.LittleEndian.Uint64(fields["request_slot"]),
		Status:           RequestStatus(fields["status"][0]),
		NumWords:         binary.LittleEndian.Uint32(fields["num_words"]),
		CallbackGasLimit: binary.LittleEndian.Uint64(fields["callback_gas_limit"]),
		PoolID:           fields["pool_id"][0],
		RequestIndex:     binary.LittleEndian.Uint32(fields["request_index"]),
	}
	copy(r.Subscription[:], fields["subscription"])
	copy(r.Seed[:], fields["seed"])
	copy(r.Requester[:], fields["requester"])
	copy(r.RequestID[:], fields["request_id"])
	if cb := fields["callback_data"]; len(cb) > 0 {
		r.CallbackData = append([]byte(nil), cb...)
	}
	return r, nil
}

// =============================================================================
// Encoding
// =============================================================================

// EncodeFulfillment encodes a fulfillment payload:
// tag[8], u32-prefixed proof, u32-prefixed public key, requestId[32],
// poolId[1], requestIndex u32. All integers little-endian, no padding.
func EncodeFulfillment(p FulfillmentPayload) ([]byte, error) {
	if len(p.Proof) > math.MaxUint32 {
		return nil, &PayloadTooLargeError{Field: "proof", Len: len(p.Proof)}
	}
	if len(p.PublicKey) > math.MaxUint32 {
		return nil, &PayloadTooLargeError{Field: "public_key", Len: len(p.PublicKey)}
	}

	size := TagLen + 4 + len(p.Proof) + 4 + len(p.PublicKey) + 32 + 1 + 4
	buf := make([]byte, 0, size)
	buf = append(buf, FulfillTag[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Proof)))
	buf = append(buf, p.Proof...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.PublicKey)))
	buf = append(buf, p.PublicKey...)
	buf = append(buf, p.RequestID[:]...)
	buf = append(buf, p.PoolID)
	buf = binary.LittleEndian.AppendUint32(buf, p.RequestIndex)
	return buf, nil
}

// fulfillmentSchema mirrors EncodeFulfillment for decoding.
var fulfillmentSchema = []fieldDesc{
	{name: "proof", kind: fieldLenPrefixed},
	{name: "public_key", kind: fieldLenPrefixed},
	{name: "request_id", kind: fieldFixed, width: 32},
	{name: "pool_id", kind: fieldFixed, width: 1},
	{name: "request_index", kind: fieldFixed, width: 4},
}

// DecodeFulfillment decodes an encoded fulfillment payload. The receiving
// program is the real consumer; this exists for round-trip verification.
func DecodeFulfillment(raw []byte) (*FulfillmentPayload, error) {
	if len(raw) < TagLen {
		return nil, fmt.Errorf("%w: %d bytes, below tag width", ErrMalformedRecord, len(raw))
	}
	if !bytes.Equal(raw[:TagLen], FulfillTag[:]) {
		return nil, ErrTagMismatch
	}

	fields, err := readRecord(fulfillmentSchema, raw[TagLen:])
	if err != nil {
		return nil, err
	}

	p := &FulfillmentPayload{
		Proof:        append([]byte(nil), fields["proof"]...),
		PublicKey:    append([]byte(nil), fields["public_key"]...),
		PoolID:       fields["pool_id"][0],
		RequestIndex: binary.LittleEndian.Uint32(fields["request_index"]),
	}
	copy(p.RequestID[:], fields["request_id"])
	return p, nil
}

package chain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// =============================================================================
// Transaction Building
// =============================================================================

// AccountMeta names one account reference in an instruction. The receiving
// program resolves references positionally, so order is part of the protocol.
type AccountMeta struct {
	Address  Address
	Signer   bool
	Writable bool
}

// Meta returns a writable, non-signer account meta.
func Meta(addr Address) AccountMeta {
	return AccountMeta{Address: addr, Writable: true}
}

// MetaReadonly returns a read-only, non-signer account meta.
func MetaReadonly(addr Address) AccountMeta {
	return AccountMeta{Address: addr}
}

// MetaSigner returns a writable signer account meta.
func MetaSigner(addr Address) AccountMeta {
	return AccountMeta{Address: addr, Signer: true, Writable: true}
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID Address
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is a single-instruction transaction ready for signing.
type Transaction struct {
	Instruction Instruction
	FeePayer    Address
	Blockhash   Blockhash

	signature []byte
}

// NewTransaction builds an unsigned transaction anchored to blockhash.
func NewTransaction(ix Instruction, feePayer Address, blockhash Blockhash) *Transaction {
	return &Transaction{
		Instruction: ix,
		FeePayer:    feePayer,
		Blockhash:   blockhash,
	}
}

// Message serializes the signable portion of the transaction. Layout:
// blockhash[32], feePayer[32], programID[32], u8 account count, then per
// account address[32] plus a flag byte (bit0 signer, bit1 writable), then
// u32 LE data length and the instruction data.
func (t *Transaction) Message() ([]byte, error) {
	if len(t.Instruction.Accounts) > 255 {
		return nil, fmt.Errorf("too many account references: %d", len(t.Instruction.Accounts))
	}

	size := 32 + 32 + 32 + 1 + len(t.Instruction.Accounts)*33 + 4 + len(t.Instruction.Data)
	msg := make([]byte, 0, size)

	msg = append(msg, t.Blockhash[:]...)
	msg = append(msg, t.FeePayer[:]...)
	msg = append(msg, t.Instruction.ProgramID[:]...)
	msg = append(msg, byte(len(t.Instruction.Accounts)))
	for _, acct := range t.Instruction.Accounts {
		msg = append(msg, acct.Address[:]...)
		var flags byte
		if acct.Signer {
			flags |= 1
		}
		if acct.Writable {
			flags |= 2
		}
		msg = append(msg, flags)
	}
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(t.Instruction.Data)))
	msg = append(msg, t.Instruction.Data...)

	return msg, nil
}

// Sign signs the transaction message with the given keypair.
func (t *Transaction) Sign(kp *Keypair) error {
	msg, err := t.Message()
	if err != nil {
		return err
	}
	t.signature = ed25519.Sign(kp.PrivateKey, msg)
	return nil
}

// Serialize returns the base64 wire form: signature followed by message.
func (t *Transaction) Serialize() (string, error) {
	if len(t.signature) == 0 {
		return "", fmt.Errorf("transaction not signed")
	}
	msg, err := t.Message()
	if err != nil {
		return "", err
	}
	wire := make([]byte, 0, len(t.signature)+len(msg))
	wire = append(wire, t.signature...)
	wire = append(wire, msg...)
	return base64.StdEncoding.EncodeToString(wire), nil
}

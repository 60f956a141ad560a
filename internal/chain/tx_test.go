package chain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionMessageLayout(t *testing.T) {
	kp := KeypairFromSeed(testSeed())
	ix := Instruction{
		ProgramID: Address{0x42},
		Accounts: []AccountMeta{
			MetaSigner(kp.Address),
			Meta(Address{0x01}),
			MetaReadonly(Address{0x02}),
		},
		Data: []byte{0xaa, 0xbb, 0xcc},
	}
	tx := NewTransaction(ix, kp.Address, Blockhash{0x05})

	msg, err := tx.Message()
	require.NoError(t, err)

	// blockhash, fee payer, program id
	assert.Equal(t, Blockhash{0x05}, Blockhash(msg[0:32]))
	assert.Equal(t, kp.Address[:], msg[32:64])
	assert.Equal(t, ix.ProgramID[:], msg[64:96])

	// account count, then address + flags per account
	assert.Equal(t, byte(3), msg[96])
	assert.Equal(t, kp.Address[:], msg[97:129])
	assert.Equal(t, byte(0b11), msg[129], "signer+writable")
	assert.Equal(t, byte(0b10), msg[162], "writable only")
	assert.Equal(t, byte(0b00), msg[195], "readonly")

	// data length then data
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(msg[196:200]))
	assert.Equal(t, ix.Data, msg[200:203])
	assert.Len(t, msg, 203)
}

func TestTransactionSignAndSerialize(t *testing.T) {
	kp := KeypairFromSeed(testSeed())
	ix := Instruction{ProgramID: Address{0x42}, Accounts: []AccountMeta{MetaSigner(kp.Address)}}
	tx := NewTransaction(ix, kp.Address, Blockhash{0x05})

	_, err := tx.Serialize()
	require.Error(t, err, "serializing before signing must fail")

	require.NoError(t, tx.Sign(kp))
	wire, err := tx.Serialize()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(wire)
	require.NoError(t, err)
	require.Greater(t, len(raw), ed25519.SignatureSize)

	msg, err := tx.Message()
	require.NoError(t, err)
	sig := raw[:ed25519.SignatureSize]
	assert.Equal(t, msg, raw[ed25519.SignatureSize:])
	assert.True(t, ed25519.Verify(kp.PrivateKey.Public().(ed25519.PublicKey), msg, sig))
}

func TestAddressBase58RoundTrip(t *testing.T) {
	var addr Address
	for i := range addr {
		addr[i] = byte(i * 3)
	}

	parsed, err := AddressFromBase58(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)

	_, err = AddressFromBase58("tooshort")
	require.Error(t, err)
}

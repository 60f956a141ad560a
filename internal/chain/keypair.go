package chain

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// Keypair is the oracle's signing identity.
type Keypair struct {
	PrivateKey ed25519.PrivateKey
	Address    Address
}

// KeypairFromSeed derives a keypair from a 32-byte ed25519 seed.
func KeypairFromSeed(seed []byte) *Keypair {
	priv := ed25519.NewKeyFromSeed(seed)
	var addr Address
	copy(addr[:], priv.Public().(ed25519.PublicKey))
	return &Keypair{PrivateKey: priv, Address: addr}
}

// LoadKeypair reads a keypair file: a JSON array of 64 bytes, the ed25519
// private key followed by the public key.
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair file %s: %w", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file %s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(ints))
	}

	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair file %s: byte %d out of range", path, i)
		}
		raw[i] = byte(v)
	}

	priv := ed25519.PrivateKey(raw)
	addr, err := AddressFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	return &Keypair{PrivateKey: priv, Address: addr}, nil
}

package chain

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeypair(t *testing.T) {
	want := KeypairFromSeed(testSeed())
	ints := make([]int, len(want.PrivateKey))
	for i, b := range want.PrivateKey {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	kp, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, want.Address, kp.Address)
	assert.Equal(t, want.PrivateKey, kp.PrivateKey)
}

func TestLoadKeypairMissingFile(t *testing.T) {
	_, err := LoadKeypair(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadKeypairWrongLength(t *testing.T) {
	data, err := json.Marshal(make([]int, ed25519.PrivateKeySize-1))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "short.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = LoadKeypair(path)
	require.Error(t, err)
}

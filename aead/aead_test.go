package aead_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saorsa-fec/fec/aead"
	"github.com/saorsa-fec/fec/kdf"
)

func TestSealOpenRoundTrip(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	key, err := kdf.DeriveKey(kdf.Convergent, []byte("some plaintext chunk"), nil)
	require.NoError(err)

	var fileID [32]byte
	copy(fileID[:], []byte("file"))
	nonce := kdf.DeriveNonce(fileID, 0, 0)

	ad := []byte("associated-data-header-bytes")
	plaintext := []byte("hello world, this is shard data")

	ciphertext, tag, err := aead.Seal(key, nonce, ad, plaintext)
	require.NoError(err)
	assert.Len(tag, aead.TagSize)
	assert.Len(ciphertext, len(plaintext))

	decrypted, err := aead.Open(key, nonce, ad, ciphertext, tag)
	require.NoError(err)
	assert.Equal(plaintext, decrypted)
}

// Flipping any bit in the header (AD) or ciphertext must fail
// verification.
func TestTamperDetection(t *testing.T) {
	require := require.New(t)

	key, err := kdf.DeriveKey(kdf.Random, nil, nil)
	require.NoError(err)
	var fileID [32]byte
	nonce := kdf.DeriveNonce(fileID, 1, 2)

	ad := []byte("header-bytes-0123")
	plaintext := []byte("secret shard payload")

	ciphertext, tag, err := aead.Seal(key, nonce, ad, plaintext)
	require.NoError(err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := append([]byte(nil), ciphertext...)
		tampered[0] ^= 0x01
		_, err := aead.Open(key, nonce, ad, tampered, tag)
		require.Error(t, err)
	})

	t.Run("tampered associated data", func(t *testing.T) {
		tamperedAD := append([]byte(nil), ad...)
		tamperedAD[0] ^= 0x01
		_, err := aead.Open(key, nonce, tamperedAD, ciphertext, tag)
		require.Error(t, err)
	})

	t.Run("tampered tag", func(t *testing.T) {
		tamperedTag := append([]byte(nil), tag...)
		tamperedTag[0] ^= 0x01
		_, err := aead.Open(key, nonce, ad, ciphertext, tamperedTag)
		require.Error(t, err)
	})
}

func TestSealRejectsWrongKeySize(t *testing.T) {
	var nonce [kdf.NonceSize]byte
	_, _, err := aead.Seal([]byte("too-short"), nonce, nil, []byte("x"))
	require.Error(t, err)
}

func TestZeroLengthPlaintextStillAuthenticates(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	key, err := kdf.DeriveKey(kdf.Random, nil, nil)
	require.NoError(err)
	var nonce [kdf.NonceSize]byte

	ad := []byte("parity-header-and-bytes")
	ciphertext, tag, err := aead.Seal(key, nonce, ad, nil)
	require.NoError(err)
	assert.Empty(ciphertext)

	plaintext, err := aead.Open(key, nonce, ad, ciphertext, tag)
	require.NoError(err)
	assert.Empty(plaintext)
}

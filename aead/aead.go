// Package aead implements per-shard authenticated encryption:
// AES-256-GCM, keyed and nonced by package kdf, with the associated
// data being the shard's own 96-byte header (tag field zeroed). It
// adapts OhanaFS/stitch's aes package (OhanaFS/stitch/aes, a streaming
// chunked AES-GCM writer/reader) down to a single-shard,
// single-Seal/Open shape: each shard carries its own independently
// verifiable tag rather than one tag per file.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/saorsa-fec/fec/kdf"
)

// TagSize is the AEAD authentication tag length in bytes.
const TagSize = 16

// Seal encrypts plaintext under (key, nonce) with associatedData (the
// shard's header, tag field zeroed) as the AEAD's associated data. It
// returns the ciphertext (same length as plaintext) and the 16-byte
// tag separately, since the header's Tag field and payload are stored
// in different parts of the shard.
func Seal(key []byte, nonce [kdf.NonceSize]byte, associatedData, plaintext []byte) (ciphertext, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	sealed := gcm.Seal(nil, nonce[:], plaintext, associatedData)
	ciphertextLen := len(sealed) - gcm.Overhead()
	return sealed[:ciphertextLen], sealed[ciphertextLen:], nil
}

// Open decrypts ciphertext under (key, nonce), verifying it against tag
// and associatedData. A tag mismatch is reported as an error, which the
// pipeline treats as ShardCorruption and discards the shard.
func Open(key []byte, nonce [kdf.NonceSize]byte, associatedData, ciphertext, tag []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce[:], sealed, associatedData)
	if err != nil {
		return nil, fmt.Errorf("aead: tag verification failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != kdf.KeySize {
		return nil, fmt.Errorf("aead: key must be %d bytes, got %d", kdf.KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("aead: failed to create gcm: %w", err)
	}
	if gcm.NonceSize() != kdf.NonceSize {
		return nil, fmt.Errorf("aead: unexpected nonce size %d", gcm.NonceSize())
	}
	return gcm, nil
}

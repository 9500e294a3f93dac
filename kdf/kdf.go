// Package kdf implements key and nonce derivation: deterministic
// per-chunk AEAD keys for content-addressed deduplication (Convergent,
// ConvergentWithSecret), or random per-chunk keys persisted by the
// caller (Random), plus the shared nonce derivation all three modes
// use.
package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Mode is the sum type over the three key-derivation strategies. The
// zero value is Convergent.
type Mode uint8

const (
	// Convergent derives the AEAD key purely from plaintext content, so
	// identical chunks get identical keys across files and users. Since
	// DeriveNonce mixes in the file id, identical shards (and hence
	// deduplication) only arise within one file.
	Convergent Mode = iota
	// ConvergentWithSecret additionally mixes in a user secret, so
	// identical keys only arise among holders of the same secret.
	ConvergentWithSecret
	// Random draws the AEAD key from a CSPRNG; the caller is responsible
	// for persisting it in FileMeta.
	Random
)

func (m Mode) String() string {
	switch m {
	case Convergent:
		return "convergent"
	case ConvergentWithSecret:
		return "convergent-with-secret"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// convergentSalt is the fixed domain-separation constant for plain
// Convergent mode.
var convergentSalt = []byte("saorsa-fec/convergent/v1")

// MinSecretLen is the minimum length required for a ConvergentWithSecret
// user secret.
const MinSecretLen = 16

// ErrSecretTooShort is returned when a ConvergentWithSecret secret is
// shorter than MinSecretLen.
var ErrSecretTooShort = errors.New("kdf: user secret must be at least 16 bytes")

// KeySize is the AEAD key length in bytes (AES-256).
const KeySize = 32

// NonceSize is the AEAD nonce length in bytes.
const NonceSize = 12

// DeriveKey returns the 32-byte AEAD key for one chunk's plaintext under the
// given mode. For Random mode it draws fresh key material from a
// cryptographically secure RNG; for the two convergent modes it is a pure
// function of the plaintext (and, for ConvergentWithSecret, of secret).
func DeriveKey(mode Mode, plaintext, secret []byte) ([]byte, error) {
	switch mode {
	case Convergent:
		return extractExpand(convergentSalt, plaintext)
	case ConvergentWithSecret:
		if len(secret) < MinSecretLen {
			return nil, ErrSecretTooShort
		}
		return extractExpand(secret, plaintext)
	case Random:
		key := make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("kdf: failed to generate random key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("kdf: unknown mode %v", mode)
	}
}

// extractExpand runs HKDF-Extract-then-Expand(SHA-256, salt, ikm, info)
// and returns KeySize bytes.
func extractExpand(salt, ikm []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, []byte("key"))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("kdf: hkdf expand failed: %w", err)
	}
	return key, nil
}

// DeriveNonce computes the 12-byte per-shard nonce used by every mode:
// SHA-256(file_id || chunk_index_le32 || shard_index_le16)[0:12].
// Because (file_id, chunk_index, shard_index) is unique per shard, this
// guarantees nonce uniqueness under a single key, at the cost of
// making convergent-mode deduplication intra-file only.
func DeriveNonce(fileID [32]byte, chunkIndex uint32, shardIndex uint16) [NonceSize]byte {
	var buf [32 + 4 + 2]byte
	copy(buf[:32], fileID[:])
	binary.LittleEndian.PutUint32(buf[32:36], chunkIndex)
	binary.LittleEndian.PutUint16(buf[36:38], shardIndex)

	sum := sha256.Sum256(buf[:])

	var nonce [NonceSize]byte
	copy(nonce[:], sum[:NonceSize])
	return nonce
}

// Package cid computes the content identifier for a shard: a 32-byte
// BLAKE3 hash over its fully authenticated bytes (header followed by
// ciphertext/parity payload). Identical shards hash to identical CIDs,
// which is what lets a storage backend deduplicate writes.
package cid

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Size is the length of a CID in bytes.
const Size = 32

// CID is a content identifier: BLAKE3(header_bytes || shard_bytes).
type CID [Size]byte

// Compute returns the CID for a shard given its encoded header and
// payload bytes.
func Compute(headerBytes, payload []byte) CID {
	h := blake3.New()
	_, _ = h.Write(headerBytes)
	_, _ = h.Write(payload)

	var out CID
	copy(out[:], h.Sum(nil))
	return out
}

// String returns the lowercase hex encoding of the CID.
func (c CID) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether c is the zero CID, used by callers to detect an
// unset reference before a shard has been computed.
func (c CID) IsZero() bool {
	return c == CID{}
}

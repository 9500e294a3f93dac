// Package shard defines the core data-model types shared across the
// codec, crypto and pipeline layers: FileID, NSpec, and the Shard
// itself (a header bound to its payload bytes by the AEAD tag).
package shard

import (
	"errors"
	"fmt"

	"github.com/saorsa-fec/fec/header"
)

// FileID is the application-chosen, opaque 32-byte identifier for a
// logical file.
type FileID [32]byte

// NSpec is a systematic Reed-Solomon shape: K data shards, M parity
// shards, requiring 1<=K<=255, 1<=M<=255, K+M<=256.
type NSpec struct {
	K uint8
	M uint8
}

// Total returns K+M.
func (n NSpec) Total() int { return int(n.K) + int(n.M) }

// ErrInvalidNSpec is returned by Validate when the (K, M) pair falls
// outside range.
var ErrInvalidNSpec = errors.New("shard: invalid NSpec")

// Validate checks NSpec's range invariants.
func (n NSpec) Validate() error {
	if n.K < 1 {
		return fmt.Errorf("%w: k must be >= 1", ErrInvalidNSpec)
	}
	if n.M < 1 {
		return fmt.Errorf("%w: m must be >= 1", ErrInvalidNSpec)
	}
	if n.Total() > 256 {
		return fmt.Errorf("%w: k+m=%d exceeds 256", ErrInvalidNSpec, n.Total())
	}
	return nil
}

// Shard is one of a chunk's K+M output units: a header plus its payload
// bytes (ciphertext for a data shard, RS parity bytes for a parity
// shard). The header's AEAD tag authenticates both together.
type Shard struct {
	Header  header.Header
	Payload []byte
}

// ErrDuplicateShardIndex is returned by ValidateIndices when two shards in
// the same set carry the same ShardIndex.
var ErrDuplicateShardIndex = errors.New("shard: duplicate shard index")

// ErrShardIndexOutOfRange is returned when a shard's index does not fall
// within the chunk's declared K+M span.
var ErrShardIndexOutOfRange = errors.New("shard: shard index out of range")

// ValidateIndices checks that the ShardIndex values among a
// set of shards for one chunk are a subset of
// {0, ..., k+m-1} with no duplicates.
func ValidateIndices(shards []Shard, total int) error {
	seen := make(map[uint16]bool, len(shards))
	for _, s := range shards {
		idx := s.Header.ShardIndex
		if int(idx) >= total {
			return fmt.Errorf("%w: index %d, total %d", ErrShardIndexOutOfRange, idx, total)
		}
		if seen[idx] {
			return fmt.Errorf("%w: index %d", ErrDuplicateShardIndex, idx)
		}
		seen[idx] = true
	}
	return nil
}

// ErrInconsistentNSpec is returned by ValidateNSpecConsistency when shards
// belonging to the same chunk disagree on (k, m).
var ErrInconsistentNSpec = errors.New("shard: inconsistent (k, m) across shards")

// ErrInconsistentLength is returned when shards belonging to the same
// chunk disagree on payload length.
var ErrInconsistentLength = errors.New("shard: inconsistent shard length")

// ValidateNSpecConsistency checks that all shards in one chunk
// share the same (k, m) and the same payload length s.
func ValidateNSpecConsistency(shards []Shard) error {
	if len(shards) == 0 {
		return nil
	}
	k, m := shards[0].Header.K, shards[0].Header.M
	size := len(shards[0].Payload)
	for _, s := range shards[1:] {
		if s.Header.K != k || s.Header.M != m {
			return fmt.Errorf("%w: got (%d,%d), want (%d,%d)", ErrInconsistentNSpec, s.Header.K, s.Header.M, k, m)
		}
		if len(s.Payload) != size {
			return fmt.Errorf("%w: got %d, want %d", ErrInconsistentLength, len(s.Payload), size)
		}
	}
	return nil
}

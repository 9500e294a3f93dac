// Package rs implements a systematic Reed-Solomon codec: a (k+m)-shard
// codeword built from k data shards such that any k of the k+m shards
// suffice to recover the original data, and the first k output shards
// are byte-identical to the input (the systematic property).
//
// Two interchangeable Codec implementations are provided: Pure, a
// from-scratch GF(2^8) matrix codec (package gf), and Accelerated, a thin
// wrapper over github.com/klauspost/reedsolomon's SIMD-optimised encoder.
// The wire format is invariant to the choice.
package rs

import (
	"errors"
	"fmt"
)

// ErrInvalidParameters is returned when (k, m) fall outside the allowed
// range, or outside what a given shard length supports.
var ErrInvalidParameters = errors.New("rs: invalid (k, m) parameters")

// ErrInsufficientShards is returned when fewer than k valid shards are
// available to reconstruct a codeword.
var ErrInsufficientShards = errors.New("rs: insufficient shards to reconstruct")

// ErrLengthMismatch is returned when shards passed to the same operation do
// not share an equal length, a ShardCorruption condition at the pipeline
// layer.
var ErrLengthMismatch = errors.New("rs: shard length mismatch")

// Backend selects which Codec implementation NewCodec constructs.
type Backend int

const (
	// Pure is the from-scratch GF(2^8) matrix codec.
	Pure Backend = iota
	// Accelerated wraps github.com/klauspost/reedsolomon.
	Accelerated
)

// Codec encodes and reconstructs systematic Reed-Solomon codewords for a
// fixed (k, m) shard count. A Codec is safe for concurrent use: its
// generator matrix is immutable after construction.
type Codec interface {
	// DataShards returns k.
	DataShards() int
	// ParityShards returns m.
	ParityShards() int
	// Encode takes shards[0:k] as input data shards (all of equal length)
	// and fills shards[k:k+m] with the computed parity shards.
	Encode(shards [][]byte) error
	// Reconstruct fills in any shard i for which present[i] is false, given
	// at least k shards with present[i] true. All present shards must share
	// equal length. It returns ErrInsufficientShards if fewer than k shards
	// are present, and ErrLengthMismatch on a length inconsistency.
	Reconstruct(shards [][]byte, present []bool) error
}

// ValidateNSpec checks the (k, m) range invariants: 1<=k<=255,
// 1<=m<=255, k+m<=256. k=1,m=0 combinations are rejected by construction
// since m must be at least 1.
func ValidateNSpec(k, m int) error {
	if k < 1 || k > 255 {
		return fmt.Errorf("%w: k=%d out of range [1,255]", ErrInvalidParameters, k)
	}
	if m < 1 || m > 255 {
		return fmt.Errorf("%w: m=%d out of range [1,255]", ErrInvalidParameters, m)
	}
	if k+m > 256 {
		return fmt.Errorf("%w: k+m=%d exceeds 256", ErrInvalidParameters, k+m)
	}
	return nil
}

// NewCodec returns a Codec for the given (k, m) pair and backend. Generator
// matrices (Pure) and klauspost encoders (Accelerated) are cached per
// (k, m, backend) so repeated calls for the same NSpec are cheap and the
// returned Codec can be shared across concurrent chunk workers without
// locking.
func NewCodec(k, m int, backend Backend) (Codec, error) {
	if err := ValidateNSpec(k, m); err != nil {
		return nil, err
	}
	switch backend {
	case Pure:
		return getPureCodec(k, m)
	case Accelerated:
		return getAcceleratedCodec(k, m)
	default:
		return nil, fmt.Errorf("%w: unknown backend %d", ErrInvalidParameters, backend)
	}
}

// checkShardLengths verifies that every present shard shares the same
// non-zero length, returning that length.
func checkShardLengths(shards [][]byte, present []bool) (int, error) {
	size := -1
	for i, ok := range present {
		if !ok {
			continue
		}
		if shards[i] == nil {
			return 0, fmt.Errorf("%w: shard %d marked present but nil", ErrLengthMismatch, i)
		}
		if size == -1 {
			size = len(shards[i])
			continue
		}
		if len(shards[i]) != size {
			return 0, fmt.Errorf("%w: shard %d has length %d, expected %d", ErrLengthMismatch, i, len(shards[i]), size)
		}
	}
	if size == -1 {
		return 0, ErrInsufficientShards
	}
	return size, nil
}

// presentCount counts how many entries of present are true.
func presentCount(present []bool) int {
	n := 0
	for _, ok := range present {
		if ok {
			n++
		}
	}
	return n
}

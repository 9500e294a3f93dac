package rs

import (
	"sync"

	"github.com/saorsa-fec/fec/gf"
)

// pureCodec is the from-scratch GF(2^8) systematic Reed-Solomon codec.
// gen is the cached (k+m)xk generator matrix; its top kxk block is the
// identity, which is what makes the codec systematic.
type pureCodec struct {
	k, m int
	gen  matrix
}

var pureCache sync.Map // (k,m) -> *pureCodec

type nspecKey struct{ k, m int }

func getPureCodec(k, m int) (*pureCodec, error) {
	key := nspecKey{k, m}
	if v, ok := pureCache.Load(key); ok {
		return v.(*pureCodec), nil
	}

	gen, err := buildGeneratorMatrix(k, m)
	if err != nil {
		return nil, err
	}
	c := &pureCodec{k: k, m: m, gen: gen}

	actual, _ := pureCache.LoadOrStore(key, c)
	return actual.(*pureCodec), nil
}

func (c *pureCodec) DataShards() int   { return c.k }
func (c *pureCodec) ParityShards() int { return c.m }

// Encode fills shards[k:k+m] with parity computed as gen[k:k+m] * data,
// where gen's top block is the identity so shards[0:k] are left untouched
// (the systematic property).
func (c *pureCodec) Encode(shards [][]byte) error {
	total := c.k + c.m
	if len(shards) != total {
		return ErrInsufficientShards
	}

	size := -1
	for i := 0; i < c.k; i++ {
		if shards[i] == nil {
			return ErrInsufficientShards
		}
		if size == -1 {
			size = len(shards[i])
		} else if len(shards[i]) != size {
			return ErrLengthMismatch
		}
	}

	for j := 0; j < c.m; j++ {
		row := c.gen[c.k+j]
		out := make([]byte, size)
		for col := 0; col < c.k; col++ {
			gf.VecMAC(out, shards[col], row[col])
		}
		shards[c.k+j] = out
	}
	return nil
}

// Reconstruct selects k present shards (preferring data shards, then
// ascending shard index.2's deterministic tie-break), inverts
// the corresponding kxk submatrix of gen, and uses it to recover every
// missing shard.
func (c *pureCodec) Reconstruct(shards [][]byte, present []bool) error {
	total := c.k + c.m
	if len(shards) != total || len(present) != total {
		return ErrInsufficientShards
	}

	size, err := checkShardLengths(shards, present)
	if err != nil {
		return err
	}

	if presentCount(present) < c.k {
		return ErrInsufficientShards
	}

	// All data shards already present: nothing to reconstruct for them,
	// but parity shards may still be requested; handle via the general path
	// below for simplicity and consistency.
	chosen := selectShards(present, c.k)

	sub := newMatrix(c.k, c.k)
	for row, shardIdx := range chosen {
		copy(sub[row], c.gen[shardIdx])
	}
	inv, err := sub.invert()
	if err != nil {
		return ErrSingularMatrix
	}

	// Recover the k original data shards.
	data := make([][]byte, c.k)
	for col := 0; col < c.k; col++ {
		out := make([]byte, size)
		for row, shardIdx := range chosen {
			gf.VecMAC(out, shards[shardIdx], inv[col][row])
		}
		data[col] = out
	}

	for i := 0; i < c.k; i++ {
		if !present[i] {
			shards[i] = data[i]
		}
	}

	// Regenerate any missing parity shards by reapplying gen's rows.
	for j := 0; j < c.m; j++ {
		idx := c.k + j
		if present[idx] {
			continue
		}
		row := c.gen[idx]
		out := make([]byte, size)
		for col := 0; col < c.k; col++ {
			gf.VecMAC(out, data[col], row[col])
		}
		shards[idx] = out
	}

	return nil
}

// selectShards picks exactly n shard indices from the present set,
// preferring data shards (index < k) over parity shards, then ascending
// index.2's tie-break policy for reproducibility.
func selectShards(present []bool, n int) []int {
	chosen := make([]int, 0, n)
	for i, ok := range present {
		if ok {
			chosen = append(chosen, i)
		}
		if len(chosen) == n {
			return chosen
		}
	}
	return chosen
}

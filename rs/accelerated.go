package rs

import (
	"sync"

	kp "github.com/klauspost/reedsolomon"
)

// acceleratedCodec adapts github.com/klauspost/reedsolomon to the Codec
// interface. It is OhanaFS/stitch's own Reed-Solomon dependency (also used
// by xtaci-kcptun and ateneo-connect-zstore elsewhere in the retrieved
// pack), offered here as a SIMD-accelerated alternative to the pure
// codec, with identical systematic k-of-n recovery semantics.
type acceleratedCodec struct {
	k, m int
	enc  kp.Encoder
}

var acceleratedCache sync.Map // (k,m) -> *acceleratedCodec

func getAcceleratedCodec(k, m int) (*acceleratedCodec, error) {
	key := nspecKey{k, m}
	if v, ok := acceleratedCache.Load(key); ok {
		return v.(*acceleratedCodec), nil
	}

	enc, err := kp.New(k, m)
	if err != nil {
		return nil, err
	}
	c := &acceleratedCodec{k: k, m: m, enc: enc}

	actual, _ := acceleratedCache.LoadOrStore(key, c)
	return actual.(*acceleratedCodec), nil
}

func (c *acceleratedCodec) DataShards() int   { return c.k }
func (c *acceleratedCodec) ParityShards() int { return c.m }

func (c *acceleratedCodec) Encode(shards [][]byte) error {
	total := c.k + c.m
	if len(shards) != total {
		return ErrInsufficientShards
	}
	for i := 0; i < c.k; i++ {
		if shards[i] == nil {
			return ErrInsufficientShards
		}
	}
	for j := 0; j < c.m; j++ {
		if shards[c.k+j] == nil {
			shards[c.k+j] = make([]byte, len(shards[0]))
		}
	}
	return c.enc.Encode(shards)
}

func (c *acceleratedCodec) Reconstruct(shards [][]byte, present []bool) error {
	total := c.k + c.m
	if len(shards) != total || len(present) != total {
		return ErrInsufficientShards
	}
	if presentCount(present) < c.k {
		return ErrInsufficientShards
	}
	if _, err := checkShardLengths(shards, present); err != nil {
		return err
	}

	// klauspost/reedsolomon signals a missing shard with a nil slice.
	working := make([][]byte, total)
	for i, ok := range present {
		if ok {
			working[i] = shards[i]
		}
	}

	if err := c.enc.Reconstruct(working); err != nil {
		return ErrSingularMatrix
	}

	for i := range shards {
		if !present[i] {
			shards[i] = working[i]
		}
	}
	return nil
}

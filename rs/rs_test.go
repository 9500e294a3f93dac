package rs_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saorsa-fec/fec/rs"
)

func randomShards(k, size int) [][]byte {
	shards := make([][]byte, k)
	for i := range shards {
		shards[i] = make([]byte, size)
		_, _ = rand.Read(shards[i])
	}
	return shards
}

func testSystematic(t *testing.T, backend rs.Backend) {
	require := require.New(t)
	assert := assert.New(t)

	k, m, size := 4, 2, 16
	codec, err := rs.NewCodec(k, m, backend)
	require.NoError(err)

	data := randomShards(k, size)
	full := make([][]byte, k+m)
	copy(full, data)

	require.NoError(codec.Encode(full))

	// Systematic property: first k shards are byte-identical to input.
	for i := 0; i < k; i++ {
		assert.Equal(data[i], full[i])
	}
}

func TestSystematicPure(t *testing.T)        { testSystematic(t, rs.Pure) }
func TestSystematicAccelerated(t *testing.T) { testSystematic(t, rs.Accelerated) }

func testReconstructAnyKOfN(t *testing.T, backend rs.Backend) {
	require := require.New(t)
	assert := assert.New(t)

	k, m, size := 5, 3, 32
	codec, err := rs.NewCodec(k, m, backend)
	require.NoError(err)

	data := randomShards(k, size)
	full := make([][]byte, k+m)
	copy(full, data)
	require.NoError(codec.Encode(full))

	total := k + m
	// Try every contiguous (wrapping) window of exactly m dropped shards
	// (leaving exactly k).
	for drop := 0; drop < total; drop++ {
		present := make([]bool, total)
		for i := range present {
			present[i] = true
		}
		// Drop m shards starting at `drop`, wrapping around.
		for j := 0; j < m; j++ {
			present[(drop+j)%total] = false
		}

		work := make([][]byte, total)
		for i, ok := range present {
			if ok {
				work[i] = full[i]
			}
		}

		require.NoError(codec.Reconstruct(work, present))
		for i := 0; i < k; i++ {
			assert.Equal(data[i], work[i], "drop pattern starting at %d", drop)
		}
	}
}

func TestReconstructPure(t *testing.T)        { testReconstructAnyKOfN(t, rs.Pure) }
func TestReconstructAccelerated(t *testing.T) { testReconstructAnyKOfN(t, rs.Accelerated) }

func TestInsufficientShards(t *testing.T) {
	require := require.New(t)

	k, m, size := 4, 2, 16
	codec, err := rs.NewCodec(k, m, rs.Pure)
	require.NoError(err)

	data := randomShards(k, size)
	full := make([][]byte, k+m)
	copy(full, data)
	require.NoError(codec.Encode(full))

	total := k + m
	present := make([]bool, total)
	// Only k-1 present.
	for i := 0; i < k-1; i++ {
		present[i] = true
	}

	err = codec.Reconstruct(full, present)
	require.ErrorIs(err, rs.ErrInsufficientShards)
}

func TestLengthMismatchRejected(t *testing.T) {
	require := require.New(t)

	k, m := 3, 2
	codec, err := rs.NewCodec(k, m, rs.Pure)
	require.NoError(err)

	total := k + m
	shards := make([][]byte, total)
	present := make([]bool, total)
	for i := 0; i < k; i++ {
		shards[i] = make([]byte, 8+i) // mismatched lengths
		present[i] = true
	}

	err = codec.Reconstruct(shards, present)
	require.Error(err)
}

func TestValidateNSpec(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(rs.ValidateNSpec(1, 1))
	assert.NoError(rs.ValidateNSpec(255, 1))
	assert.Error(rs.ValidateNSpec(0, 1))
	assert.Error(rs.ValidateNSpec(1, 0))
	assert.Error(rs.ValidateNSpec(200, 100))
}

func TestCodecCachedPerNSpec(t *testing.T) {
	assert := assert.New(t)

	c1, err := rs.NewCodec(4, 2, rs.Pure)
	assert.NoError(err)
	c2, err := rs.NewCodec(4, 2, rs.Pure)
	assert.NoError(err)
	assert.Same(c1, c2)
}

package shard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saorsa-fec/fec/header"
	"github.com/saorsa-fec/fec/shard"
)

func TestNSpecValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(shard.NSpec{K: 4, M: 2}.Validate())
	assert.ErrorIs(shard.NSpec{K: 0, M: 2}.Validate(), shard.ErrInvalidNSpec)
	assert.ErrorIs(shard.NSpec{K: 4, M: 0}.Validate(), shard.ErrInvalidNSpec)
	assert.ErrorIs(shard.NSpec{K: 200, M: 100}.Validate(), shard.ErrInvalidNSpec)
}

func makeShard(idx uint16, k, m uint8, size int) shard.Shard {
	h := *header.New()
	h.ShardIndex = idx
	h.K = k
	h.M = m
	return shard.Shard{Header: h, Payload: make([]byte, size)}
}

func TestValidateIndicesRejectsDuplicates(t *testing.T) {
	require := require.New(t)
	shards := []shard.Shard{
		makeShard(0, 4, 2, 16),
		makeShard(0, 4, 2, 16),
	}
	err := shard.ValidateIndices(shards, 6)
	require.ErrorIs(err, shard.ErrDuplicateShardIndex)
}

func TestValidateIndicesRejectsOutOfRange(t *testing.T) {
	require := require.New(t)
	shards := []shard.Shard{makeShard(10, 4, 2, 16)}
	err := shard.ValidateIndices(shards, 6)
	require.ErrorIs(err, shard.ErrShardIndexOutOfRange)
}

func TestValidateIndicesAcceptsPermutation(t *testing.T) {
	require := require.New(t)
	shards := []shard.Shard{
		makeShard(3, 4, 2, 16),
		makeShard(0, 4, 2, 16),
		makeShard(5, 4, 2, 16),
	}
	require.NoError(shard.ValidateIndices(shards, 6))
}

func TestValidateNSpecConsistency(t *testing.T) {
	require := require.New(t)

	consistent := []shard.Shard{
		makeShard(0, 4, 2, 16),
		makeShard(1, 4, 2, 16),
	}
	require.NoError(shard.ValidateNSpecConsistency(consistent))

	badNSpec := []shard.Shard{
		makeShard(0, 4, 2, 16),
		makeShard(1, 3, 2, 16),
	}
	require.ErrorIs(shard.ValidateNSpecConsistency(badNSpec), shard.ErrInconsistentNSpec)

	badLength := []shard.Shard{
		makeShard(0, 4, 2, 16),
		makeShard(1, 4, 2, 8),
	}
	require.ErrorIs(shard.ValidateNSpecConsistency(badLength), shard.ErrInconsistentLength)
}

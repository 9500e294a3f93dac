package chunk_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saorsa-fec/fec/chunk"
	"github.com/saorsa-fec/fec/kdf"
	"github.com/saorsa-fec/fec/rs"
	"github.com/saorsa-fec/fec/shard"
)

func testFileID(s string) shard.FileID {
	var id shard.FileID
	copy(id[:], []byte(s))
	return id
}

// A full round-trip with every shard present recovers the exact
// plaintext.
func TestEncodeDecodeRoundTripAllShardsPresent(t *testing.T) {
	require := require.New(t)

	fileID := testFileID("file-one")
	n := shard.NSpec{K: 4, M: 2}
	plaintext := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk")

	enc, err := chunk.Encode(fileID, 0, plaintext, n, kdf.Convergent, nil, rs.Pure)
	require.NoError(err)
	require.Len(enc.Shards, 6)

	raw := make([][]byte, len(enc.Shards))
	for i, s := range enc.Shards {
		hb, err := s.Header.MarshalBinary()
		require.NoError(err)
		raw[i] = append(hb, s.Payload...)
	}

	key, err := kdf.DeriveKey(kdf.Convergent, plaintext, nil)
	require.NoError(err)

	decoded, err := chunk.Decode(fileID, 0, n, kdf.Convergent, key, enc.PlaintextLen, raw, rs.Pure)
	require.NoError(err)
	assert.Equal(t, plaintext, decoded)
}

// Decoding succeeds with two data shards missing, via RS reconstruction
// from the remaining data and parity shards.
func TestEncodeDecodeRoundTripMissingDataShards(t *testing.T) {
	require := require.New(t)

	fileID := testFileID("file-two")
	n := shard.NSpec{K: 4, M: 3}
	plaintext := bytes.Repeat([]byte("abcd"), 500)

	enc, err := chunk.Encode(fileID, 7, plaintext, n, kdf.Random, nil, rs.Pure)
	require.NoError(err)
	require.NotNil(enc.Key)

	raw := make([][]byte, 0, len(enc.Shards))
	// Drop data shards 0 and 1; keep data shards 2 and 3 and every parity
	// shard, leaving 5 of the 7 total shards present (still >= k=4).
	for i, s := range enc.Shards {
		if i < 2 {
			continue
		}
		hb, err := s.Header.MarshalBinary()
		require.NoError(err)
		raw = append(raw, append(hb, s.Payload...))
	}
	require.Len(raw, 5)

	decoded, err := chunk.Decode(fileID, 7, n, kdf.Random, enc.Key, enc.PlaintextLen, raw, rs.Pure)
	require.NoError(err)
	assert.Equal(t, plaintext, decoded)
}

// A corrupted shard fails verification and is discarded; with
// enough surviving shards, decode still succeeds via reconstruction.
func TestDecodeDiscardsCorruptedShard(t *testing.T) {
	require := require.New(t)

	fileID := testFileID("file-three")
	n := shard.NSpec{K: 3, M: 2}
	plaintext := []byte("some plaintext content for the corruption test case")

	enc, err := chunk.Encode(fileID, 1, plaintext, n, kdf.Convergent, nil, rs.Pure)
	require.NoError(err)

	raw := make([][]byte, len(enc.Shards))
	for i, s := range enc.Shards {
		hb, err := s.Header.MarshalBinary()
		require.NoError(err)
		raw[i] = append(hb, s.Payload...)
	}
	// Flip a payload byte in shard 0 to corrupt its ciphertext.
	raw[0][len(raw[0])-1] ^= 0xFF

	key, err := kdf.DeriveKey(kdf.Convergent, plaintext, nil)
	require.NoError(err)

	decoded, err := chunk.Decode(fileID, 1, n, kdf.Convergent, key, enc.PlaintextLen, raw, rs.Pure)
	require.NoError(err)
	assert.Equal(t, plaintext, decoded)
}

// Fewer than k valid shards yields ErrInsufficientShards.
func TestDecodeInsufficientShards(t *testing.T) {
	require := require.New(t)

	fileID := testFileID("file-four")
	n := shard.NSpec{K: 4, M: 2}
	plaintext := []byte("not enough shards will survive this test scenario")

	enc, err := chunk.Encode(fileID, 0, plaintext, n, kdf.Convergent, nil, rs.Pure)
	require.NoError(err)

	raw := make([][]byte, 0, 3)
	for i, s := range enc.Shards {
		if i >= 3 {
			break
		}
		hb, err := s.Header.MarshalBinary()
		require.NoError(err)
		raw = append(raw, append(hb, s.Payload...))
	}

	key, err := kdf.DeriveKey(kdf.Convergent, plaintext, nil)
	require.NoError(err)

	_, err = chunk.Decode(fileID, 0, n, kdf.Convergent, key, enc.PlaintextLen, raw, rs.Pure)
	require.ErrorIs(err, rs.ErrInsufficientShards)
}

func TestEncodeRejectsEmptyPlaintext(t *testing.T) {
	fileID := testFileID("x")
	_, err := chunk.Encode(fileID, 0, nil, shard.NSpec{K: 2, M: 1}, kdf.Convergent, nil, rs.Pure)
	require.ErrorIs(t, err, chunk.ErrEmptyPlaintext)
}

// The final short chunk is zero-padded to k*s before RS encoding, and
// trimmed back to its true length on decode.
func TestEncodeDecodeShortFinalChunk(t *testing.T) {
	require := require.New(t)

	fileID := testFileID("file-five")
	n := shard.NSpec{K: 5, M: 2}
	plaintext := []byte("shorter") // 7 bytes, k=5: s=2, so 3 bytes of zero padding

	enc, err := chunk.Encode(fileID, 3, plaintext, n, kdf.Convergent, nil, rs.Accelerated)
	require.NoError(err)
	assert.Equal(t, len(plaintext), enc.PlaintextLen)
	assert.True(t, enc.AcceleratedRS)

	raw := make([][]byte, len(enc.Shards))
	for i, s := range enc.Shards {
		hb, err := s.Header.MarshalBinary()
		require.NoError(err)
		raw[i] = append(hb, s.Payload...)
	}

	key, err := kdf.DeriveKey(kdf.Convergent, plaintext, nil)
	require.NoError(err)

	decoded, err := chunk.Decode(fileID, 3, n, kdf.Convergent, key, enc.PlaintextLen, raw, rs.Accelerated)
	require.NoError(err)
	assert.Equal(t, plaintext, decoded)
}

// Exercises chunk.Stream over a multi-chunk input, confirming fixed-size
// chunks and a correctly-sized final short chunk.
func TestStreamEmitsFixedSizeChunksAndShortTail(t *testing.T) {
	require := require.New(t)

	data := strings.Repeat("x", 10) // 10 bytes, chunk size 4 -> 4,4,2
	results := make([]chunk.Result, 0, 3)
	for r := range chunk.Stream(strings.NewReader(data), 4) {
		results = append(results, r)
	}

	require.Len(results, 3)
	assert.Len(t, results[0].Plaintext, 4)
	assert.Len(t, results[1].Plaintext, 4)
	assert.Len(t, results[2].Plaintext, 2)
	for _, r := range results {
		require.NoError(r.Err)
	}
}

func TestStreamPropagatesReadError(t *testing.T) {
	require := require.New(t)

	errReader := &erroringReader{}
	var last chunk.Result
	for r := range chunk.Stream(errReader, 4) {
		last = r
	}
	require.Error(last.Err)
}

type erroringReader struct{}

func (e *erroringReader) Read(p []byte) (int, error) {
	return 0, io.ErrClosedPipe
}

// Package chunk implements a fixed-size plaintext chunker and the
// per-chunk write/read pipeline steps: KDF, AEAD, RS-encode and
// header-stamp on write; verify, RS-reconstruct and AEAD-decrypt on read.
// The channel-based streaming shape is grounded on the pack's
// channel-of-chunks chunker pattern (btnx-protocol's pkg/chunker);
// the per-chunk crypto/codec wiring is new, combining the gf/rs/kdf/
// aead/header/cid/shard packages built for this engine.
package chunk

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"

	"github.com/saorsa-fec/fec/aead"
	"github.com/saorsa-fec/fec/header"
	"github.com/saorsa-fec/fec/kdf"
	"github.com/saorsa-fec/fec/rs"
	"github.com/saorsa-fec/fec/shard"
)

// Result carries one plaintext chunk read from a stream, or a terminal
// read error, over the channel returned by Stream.
type Result struct {
	Index     uint32
	Plaintext []byte
	Err       error
}

// Stream reads r into a sequence of fixed size-byte plaintext chunks,
// emitting one Result per chunk (including the final, possibly short,
// chunk) over a small buffered channel so a slow downstream consumer
// does not stall the reader goroutine indefinitely.
//
// The final chunk is delivered at its true, unpadded length L; the
// zero-padding to k*s is applied later, in Encode, once k is known.
func Stream(r io.Reader, size int) <-chan Result {
	out := make(chan Result, 2)

	go func() {
		defer close(out)

		buf := make([]byte, size)
		var index uint32
		for {
			n, err := io.ReadFull(r, buf)
			switch {
			case err == io.EOF:
				return
			case err == io.ErrUnexpectedEOF:
				// Final short chunk; not an error.
			case err != nil:
				out <- Result{Index: index, Err: fmt.Errorf("chunk: read failed: %w", err)}
				return
			}

			plaintext := make([]byte, n)
			copy(plaintext, buf[:n])
			out <- Result{Index: index, Plaintext: plaintext}
			index++

			if n < size {
				return
			}
		}
	}()

	return out
}

// Encoded is the output of Encode for one chunk: the k+m shards ready
// for CID computation and backend.Put, plus the fields a ChunkRef
// records about the chunk.
type Encoded struct {
	Shards        []shard.Shard
	PlaintextLen  int
	ShardLen      int
	// Key is the derived AEAD key for this chunk. For kdf.Random it is
	// the only copy that will ever exist; for the two convergent modes
	// it is reproducible from the plaintext alone, but the caller still
	// needs it here to actually read the chunk back later (see
	// pipeline's FileMeta key-custody design), so it is always returned.
	Key           []byte
	AcceleratedRS bool
}

var (
	// ErrEmptyPlaintext is returned by Encode when given a zero-length
	// chunk; the chunker never emits one, so this indicates caller misuse.
	ErrEmptyPlaintext = errors.New("chunk: plaintext must be non-empty")
	// ErrShardCorruption is returned by Decode when a reconstructed data
	// shard fails to decrypt, or when the recorded plaintext length is
	// inconsistent with the recovered bytes.
	ErrShardCorruption = errors.New("chunk: shard corruption detected")
)

// Encode implements the write path of steps 1-7 for a single
// chunk: derive the AEAD key, partition and pad the plaintext into k
// slices, encrypt each under its own per-shard nonce and header, RS
// encode the k ciphertext shards into m parity shards, and stamp+seal
// a header onto every shard (data and parity alike).
func Encode(fileID shard.FileID, chunkIndex uint32, plaintext []byte, n shard.NSpec, mode kdf.Mode, secret []byte, backend rs.Backend) (*Encoded, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	key, err := kdf.DeriveKey(mode, plaintext, secret)
	if err != nil {
		return nil, fmt.Errorf("chunk: key derivation failed: %w", err)
	}

	k, m := int(n.K), int(n.M)
	total := k + m
	shardLen := (len(plaintext) + k - 1) / k

	padded := make([]byte, k*shardLen)
	copy(padded, plaintext)

	codec, err := rs.NewCodec(int(n.K), int(n.M), backend)
	if err != nil {
		return nil, fmt.Errorf("chunk: codec init failed: %w", err)
	}

	shards := make([][]byte, total)
	headers := make([]*header.Header, total)

	var fileIDArr [32]byte
	copy(fileIDArr[:], fileID[:])

	for i := 0; i < k; i++ {
		plainSlice := padded[i*shardLen : (i+1)*shardLen]

		h := header.New()
		h.FileID = fileIDArr
		h.ChunkIndex = chunkIndex
		h.ShardIndex = uint16(i)
		h.K, h.M = n.K, n.M
		h.Encrypted = true
		h.EncMode = toHeaderMode(mode)
		h.Accelerated = backend == rs.Accelerated

		nonce := kdf.DeriveNonce(fileIDArr, chunkIndex, uint16(i))
		h.Nonce = nonce

		ad, err := h.AssociatedData()
		if err != nil {
			return nil, fmt.Errorf("chunk: header encode failed: %w", err)
		}

		ciphertext, tag, err := aead.Seal(key, nonce, ad, plainSlice)
		if err != nil {
			return nil, fmt.Errorf("chunk: seal failed for data shard %d: %w", i, err)
		}
		copy(h.Tag[:], tag)

		shards[i] = ciphertext
		headers[i] = h
	}

	if err := codec.Encode(shards); err != nil {
		return nil, fmt.Errorf("chunk: rs encode failed: %w", err)
	}

	for j := k; j < total; j++ {
		h := header.New()
		h.FileID = fileIDArr
		h.ChunkIndex = chunkIndex
		h.ShardIndex = uint16(j)
		h.K, h.M = n.K, n.M
		h.Encrypted = true
		h.EncMode = toHeaderMode(mode)
		h.Accelerated = backend == rs.Accelerated

		nonce := kdf.DeriveNonce(fileIDArr, chunkIndex, uint16(j))
		h.Nonce = nonce

		headerAD, err := h.AssociatedData()
		if err != nil {
			return nil, fmt.Errorf("chunk: header encode failed: %w", err)
		}
		// Parity shards carry their RS-computed bytes as payload; the
		// AEAD tag authenticates (header, parity bytes) via a
		// zero-length-plaintext seal whose associated data is
		// header||parity.
		ad := append(append([]byte(nil), headerAD...), shards[j]...)

		_, tag, err := aead.Seal(key, nonce, ad, nil)
		if err != nil {
			return nil, fmt.Errorf("chunk: seal failed for parity shard %d: %w", j, err)
		}
		copy(h.Tag[:], tag)

		headers[j] = h
	}

	result := make([]shard.Shard, total)
	for i := 0; i < total; i++ {
		result[i] = shard.Shard{Header: *headers[i], Payload: shards[i]}
	}

	encoded := &Encoded{
		Shards:        result,
		PlaintextLen:  len(plaintext),
		ShardLen:      shardLen,
		Key:           key,
		AcceleratedRS: backend == rs.Accelerated,
	}
	return encoded, nil
}

// Decode implements the read path of steps 2-5 for a single
// chunk, given the raw (header||payload) bytes fetched from the backend
// for each shard the caller managed to retrieve. Shards failing
// version, NSpec or tag verification are silently discarded, matching
// "discard any shard that fails" (step 2). If fewer than k shards
// survive verification, it returns ErrInsufficientShards.
func Decode(fileID shard.FileID, chunkIndex uint32, n shard.NSpec, mode kdf.Mode, key []byte, plaintextLen int, raw [][]byte, backend rs.Backend) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	k, m := int(n.K), int(n.M)
	total := k + m

	var fileIDArr [32]byte
	copy(fileIDArr[:], fileID[:])

	verified := make(map[int][]byte, len(raw))
	var shardLen int

	for _, rawShard := range raw {
		s, ok := decodeAndVerify(rawShard, fileIDArr, chunkIndex, n, key)
		if !ok {
			continue
		}
		if shardLen == 0 {
			shardLen = len(s.payload)
		} else if len(s.payload) != shardLen {
			continue // inconsistent length: treat as corruption, discard
		}
		verified[s.index] = s.payload
	}

	if len(verified) < k {
		return nil, fmt.Errorf("%w: have %d, need %d", rs.ErrInsufficientShards, len(verified), k)
	}

	shards := make([][]byte, total)
	for idx, payload := range verified {
		shards[idx] = payload
	}

	codec, err := rs.NewCodec(int(n.K), int(n.M), backend)
	if err != nil {
		return nil, fmt.Errorf("chunk: codec init failed: %w", err)
	}
	present := make([]bool, total)
	for idx := range verified {
		present[idx] = true
	}
	if err := codec.Reconstruct(shards, present); err != nil {
		return nil, fmt.Errorf("chunk: rs reconstruct failed: %w", err)
	}

	plaintext := make([]byte, 0, k*shardLen)
	for i := 0; i < k; i++ {
		nonce := kdf.DeriveNonce(fileIDArr, chunkIndex, uint16(i))

		// A shard that was received and passed decodeAndVerify already
		// had its GCM tag checked there. A shard recovered by
		// rs.Reconstruct never had a tag fetched for it at all — RS
		// linear algebra guarantees its bytes equal the original
		// ciphertext given >=k authentic inputs, so there is nothing
		// left to check. Either way the plaintext is recovered the same
		// way: XOR the ciphertext with the AES-GCM keystream for
		// (key, nonce_i).8 step 5's "decrypt each slice
		// under its own (nonce_i, HDR_i)".
		plain, err := gcmKeystreamXOR(key, nonce, shards[i])
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d shard %d: %v", ErrShardCorruption, chunkIndex, i, err)
		}
		plaintext = append(plaintext, plain...)
	}

	if plaintextLen > len(plaintext) {
		return nil, fmt.Errorf("%w: recorded plaintext length %d exceeds decoded length %d", ErrShardCorruption, plaintextLen, len(plaintext))
	}
	return plaintext[:plaintextLen], nil
}

type verifiedShard struct {
	index   int
	payload []byte
}

// decodeAndVerify parses one raw (header||payload) buffer, checks it
// against the expected file/chunk/NSpec context and its own AEAD tag,
// and returns the verified shard on success.
func decodeAndVerify(raw []byte, fileID [32]byte, chunkIndex uint32, n shard.NSpec, key []byte) (verifiedShard, bool) {
	if len(raw) < header.HeaderSize {
		return verifiedShard{}, false
	}
	h := header.New()
	if err := h.UnmarshalBinary(raw[:header.HeaderSize]); err != nil {
		return verifiedShard{}, false
	}
	if h.FileID != fileID || h.ChunkIndex != chunkIndex {
		return verifiedShard{}, false
	}
	if h.K != n.K || h.M != n.M {
		return verifiedShard{}, false
	}
	payload := raw[header.HeaderSize:]

	expectedNonce := kdf.DeriveNonce(fileID, chunkIndex, h.ShardIndex)
	if h.Nonce != expectedNonce {
		return verifiedShard{}, false
	}

	ad, err := h.AssociatedData()
	if err != nil {
		return verifiedShard{}, false
	}

	k := int(n.K)
	if int(h.ShardIndex) < k {
		if _, err := aead.Open(key, h.Nonce, ad, payload, h.Tag[:]); err != nil {
			return verifiedShard{}, false
		}
	} else {
		parityAD := append(append([]byte(nil), ad...), payload...)
		if _, err := aead.Open(key, h.Nonce, parityAD, nil, h.Tag[:]); err != nil {
			return verifiedShard{}, false
		}
	}

	return verifiedShard{index: int(h.ShardIndex), payload: payload}, true
}

// gcmKeystreamXOR recovers plaintext from a GCM ciphertext slice without
// a tag, by directly generating the same keystream AES-GCM would have
// used and XOR-ing it in (CTR mode starting at counter nonce||0x00000002,
// per NIST SP 800-38D's inc32(J0) for a 96-bit IV). It is only used for
// shards already known-authentic: either individually tag-verified in
// decodeAndVerify, or produced by rs.Codec.Reconstruct from >=k such
// shards, whose correctness follows from the erasure code's linear
// algebra rather than a fresh tag check.
func gcmKeystreamXOR(key []byte, nonce [kdf.NonceSize]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("chunk: cipher init failed: %w", err)
	}

	var counter [aes.BlockSize]byte
	copy(counter[:len(nonce)], nonce[:])
	counter[len(counter)-1] = 2

	stream := cipher.NewCTR(block, counter[:])
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

func toHeaderMode(mode kdf.Mode) header.EncMode {
	switch mode {
	case kdf.Convergent:
		return header.EncModeConvergent
	case kdf.ConvergentWithSecret:
		return header.EncModeConvergentWithSecret
	case kdf.Random:
		return header.EncModeRandom
	default:
		return header.EncModeConvergent
	}
}

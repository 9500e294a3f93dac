// Package filemeta implements FileMeta wire format: the
// ordered list of ChunkRef records describing a file's chunks and their
// shard CIDs, plus custody of each chunk's AEAD key (stored whole, or
// Shamir-split), whatever the EncMode. Serialization uses github.com/vmihailenco/msgpack/v5 (a
// direct OhanaFS/stitch dependency) behind a small "SFEC" magic + version
// prefix, mirroring OhanaFS/stitch's own magic-bytes-plus-fixed-header
// convention (OhanaFS/stitch/header.Header) applied at the FileMeta
// level instead of the per-shard level.
package filemeta

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/saorsa-fec/fec/cid"
	"github.com/saorsa-fec/fec/kdf"
	"github.com/saorsa-fec/fec/shard"
)

// magic identifies the on-wire FileMeta format.
var magic = [4]byte{'S', 'F', 'E', 'C'}

// FormatVersion is the only FileMeta wire format this package understands.
const FormatVersion = 1

// ChunkRef records one chunk's shape and the CIDs of its k+m shards.
// KeyShares carries that chunk's AEAD key, in every EncMode: a single
// entry holding the raw key, or several Shamir shares of it.
type ChunkRef struct {
	ChunkIndex   uint32
	K, M         uint8
	ShardLen     uint32 // s: the length of every shard's payload
	PlaintextLen uint32 // L: the chunk's true (unpadded) plaintext length
	CIDs         [][]byte
	KeyShares    [][]byte `msgpack:",omitempty"`
}

// NewChunkRef builds a ChunkRef from a chunk's NSpec, lengths and the
// CIDs computed over each of its k+m shards.
func NewChunkRef(chunkIndex uint32, n shard.NSpec, shardLen, plaintextLen int, cids []cid.CID) ChunkRef {
	raw := make([][]byte, len(cids))
	for i, c := range cids {
		cp := c
		raw[i] = append([]byte(nil), cp[:]...)
	}
	return ChunkRef{
		ChunkIndex:   chunkIndex,
		K:            n.K,
		M:            n.M,
		ShardLen:     uint32(shardLen),
		PlaintextLen: uint32(plaintextLen),
		CIDs:         raw,
	}
}

// NSpec reconstructs the chunk's (k, m) pair.
func (r ChunkRef) NSpec() shard.NSpec { return shard.NSpec{K: r.K, M: r.M} }

// CID returns the CID of shard i (0..K+M-1).
func (r ChunkRef) CID(i int) cid.CID {
	var c cid.CID
	copy(c[:], r.CIDs[i])
	return c
}

// FileMeta is the durable record of one logical file: its identity,
// total size, encryption mode, and the ordered ChunkRefs that let a
// reader fetch and reassemble every chunk.
type FileMeta struct {
	FileID       shard.FileID
	TotalSize    uint64
	EncMode      kdf.Mode
	KeyThreshold uint8 // Shamir threshold for per-chunk key shares
	KeyShares    uint8 // total key shares stored per chunk
	Chunks       []ChunkRef
	UserMetadata map[string]string
}

// wireFileMeta is FileMeta flattened for msgpack: FileID becomes a plain
// slice and EncMode a byte, since msgpack round-trips those more simply
// than a fixed [32]byte array and a named integer type.
type wireFileMeta struct {
	FileID       []byte
	TotalSize    uint64
	EncMode      uint8
	KeyThreshold uint8
	KeyShares    uint8
	Chunks       []ChunkRef
	UserMetadata map[string]string
}

var (
	// ErrBadMagic is returned by Unmarshal when the leading 4 bytes are
	// not "SFEC".
	ErrBadMagic = errors.New("filemeta: bad magic bytes")
	// ErrUnsupportedVersion is returned by Unmarshal on any format
	// version other than FormatVersion.
	ErrUnsupportedVersion = errors.New("filemeta: unsupported format version")
)

// Marshal encodes fm as magic || version || msgpack(wireFileMeta).
func Marshal(fm *FileMeta) ([]byte, error) {
	wire := wireFileMeta{
		FileID:       append([]byte(nil), fm.FileID[:]...),
		TotalSize:    fm.TotalSize,
		EncMode:      uint8(fm.EncMode),
		KeyThreshold: fm.KeyThreshold,
		KeyShares:    fm.KeyShares,
		Chunks:       fm.Chunks,
		UserMetadata: fm.UserMetadata,
	}
	body, err := msgpack.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("filemeta: marshal failed: %w", err)
	}

	buf := make([]byte, 0, 5+len(body))
	buf = append(buf, magic[:]...)
	buf = append(buf, FormatVersion)
	buf = append(buf, body...)
	return buf, nil
}

// Unmarshal decodes a buffer produced by Marshal.
func Unmarshal(data []byte) (*FileMeta, error) {
	if len(data) < 5 || !bytes.Equal(data[:4], magic[:]) {
		return nil, ErrBadMagic
	}
	if data[4] != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, data[4], FormatVersion)
	}

	var wire wireFileMeta
	if err := msgpack.Unmarshal(data[5:], &wire); err != nil {
		return nil, fmt.Errorf("filemeta: unmarshal failed: %w", err)
	}

	fm := &FileMeta{
		TotalSize:    wire.TotalSize,
		EncMode:      kdf.Mode(wire.EncMode),
		KeyThreshold: wire.KeyThreshold,
		KeyShares:    wire.KeyShares,
		Chunks:       wire.Chunks,
		UserMetadata: wire.UserMetadata,
	}
	copy(fm.FileID[:], wire.FileID)
	return fm, nil
}

// SplitChunkKey splits a chunk's 32-byte AEAD key into
// `shares` pieces, any `threshold` of which can recombine it. This
// adapts OhanaFS/stitch's key-custody pattern — RotateKeys/splitFileKey in
// OhanaFS/stitch's keys.go and encoder.go, which Shamir-split a file key
// across shard headers — to per-chunk keys stored in FileMeta instead,
// since the fixed 96-byte header has no room for a variable-length
// Shamir share.
func SplitChunkKey(key []byte, shares, threshold int) ([][]byte, error) {
	parts, err := shamir.Split(key, shares, threshold)
	if err != nil {
		return nil, fmt.Errorf("filemeta: shamir split failed: %w", err)
	}
	return parts, nil
}

// CombineChunkKey reverses SplitChunkKey given at least `threshold` of
// the original shares (in any order, as hashicorp/vault/shamir requires
// the caller to have retained the share's trailing index byte).
func CombineChunkKey(shares [][]byte) ([]byte, error) {
	key, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("filemeta: shamir combine failed: %w", err)
	}
	return key, nil
}

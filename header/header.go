// Package header implements a fixed 96-byte shard header: version,
// file id, chunk/shard indices, (k, m), flags, nonce and AEAD tag.
// Every shard on the wire is exactly HeaderSize+s bytes, where s is the
// shard payload length. It adapts OhanaFS/stitch's Header type
// (OhanaFS/stitch's header package), which wrapped an arbitrary-length
// JSON-encoded header in a fixed buffer with a magic prefix, into a
// fully fixed-layout binary encoding.
package header

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed, on-wire size of a shard header in bytes.
const HeaderSize = 96

// Version is the only header version this package understands. A version
// mismatch on read is fatal.
const Version = 3

// EncMode mirrors kdf.Mode's three values as encoded into flag bits 1-2,
// without header importing package kdf (it sits below kdf in the
// dependency graph by design).
type EncMode uint8

const (
	EncModeConvergent EncMode = iota
	EncModeConvergentWithSecret
	EncModeRandom
)

// Flag bit positions within the single flags byte.
const (
	flagEncrypted   = 1 << 0
	flagEncModeBit0 = 1 << 1
	flagEncModeBit1 = 1 << 2
	flagCompressed  = 1 << 3
	flagAccelerated = 1 << 4
	encModeMask     = flagEncModeBit0 | flagEncModeBit1
)

var (
	// ErrInvalidSize is returned when the buffer passed to UnmarshalBinary is not
	// exactly HeaderSize bytes.
	ErrInvalidSize = errors.New("header: buffer must be exactly 96 bytes")
	// ErrVersionMismatch is returned on any version other than Version.
	ErrVersionMismatch = errors.New("header: unsupported version")
)

// Header is the parsed form of a shard's fixed 96-byte header.
type Header struct {
	// Version is always Version on a freshly-built header; UnmarshalBinary rejects
	// any other value.
	Version byte
	// FileID is the application-chosen 32-byte file identifier.
	FileID [32]byte
	// ChunkIndex is the 0-based chunk index within the file.
	ChunkIndex uint32
	// ShardIndex is the 0-based shard index within the chunk; 0..K-1 are
	// data shards, K..K+M-1 are parity shards.
	ShardIndex uint16
	// K is the number of data shards in this chunk's codeword.
	K uint8
	// M is the number of parity shards in this chunk's codeword.
	M uint8
	// Encrypted records whether this shard's payload is AEAD-ciphertext.
	Encrypted bool
	// EncMode records which kdf mode produced the AEAD key.
	EncMode EncMode
	// Compressed records whether the payload was compressed before
	// encryption; the codec choice itself is an external pre-stage, this
	// bit only records that some such stage ran.
	Compressed bool
	// Accelerated records whether the Accelerated rs.Codec backend
	// produced this shard set, vs. the Pure codec.
	Accelerated bool
	// Nonce is the 12-byte AEAD nonce used for this shard.
	Nonce [12]byte
	// Tag is the 16-byte AEAD authentication tag over (header, ciphertext)
	// with this field zeroed during computation.
	Tag [16]byte
}

var _ encoding.BinaryMarshaler = (*Header)(nil)
var _ encoding.BinaryUnmarshaler = (*Header)(nil)

// New returns a Header pre-populated with the current Version and every
// other field zeroed.
func New() *Header {
	return &Header{Version: Version}
}

func (h *Header) flags() byte {
	var f byte
	if h.Encrypted {
		f |= flagEncrypted
	}
	f |= byte(h.EncMode<<1) & encModeMask
	if h.Compressed {
		f |= flagCompressed
	}
	if h.Accelerated {
		f |= flagAccelerated
	}
	return f
}

func (h *Header) setFlags(f byte) {
	h.Encrypted = f&flagEncrypted != 0
	h.EncMode = EncMode((f & encModeMask) >> 1)
	h.Compressed = f&flagCompressed != 0
	h.Accelerated = f&flagAccelerated != 0
}

// MarshalBinary encodes the header into a fresh HeaderSize-byte slice.
// Unknown/reserved bytes and bits are always written as zero, for
// forward compatibility within this header Version (UnmarshalBinary
// ignores them but rejects any other Version).
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)

	buf[0] = h.Version
	// buf[1] reserved, left zero.
	copy(buf[2:34], h.FileID[:])
	binary.LittleEndian.PutUint32(buf[34:38], h.ChunkIndex)
	binary.LittleEndian.PutUint16(buf[38:40], h.ShardIndex)
	buf[40] = h.K
	buf[41] = h.M
	buf[42] = h.flags()
	// buf[43] reserved, left zero.
	copy(buf[44:56], h.Nonce[:])
	copy(buf[56:72], h.Tag[:])
	// buf[72:96] reserved, left zero.

	return buf, nil
}

// UnmarshalBinary decodes a HeaderSize-byte buffer into h. Reserved bytes
// and unknown flag bits are ignored rather than rejected.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("%w: got %d", ErrInvalidSize, len(data))
	}

	version := data[0]
	if version != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, Version)
	}

	h.Version = version
	copy(h.FileID[:], data[2:34])
	h.ChunkIndex = binary.LittleEndian.Uint32(data[34:38])
	h.ShardIndex = binary.LittleEndian.Uint16(data[38:40])
	h.K = data[40]
	h.M = data[41]
	h.setFlags(data[42])
	copy(h.Nonce[:], data[44:56])
	copy(h.Tag[:], data[56:72])

	return nil
}

// WithZeroTag returns a copy of h with Tag zeroed, for use as AEAD
// associated data while computing the tag.
func (h *Header) WithZeroTag() *Header {
	cp := *h
	cp.Tag = [16]byte{}
	return &cp
}

// AssociatedData returns the bytes that must be passed as AEAD associated
// data: the encoded header with its tag field zeroed.
func (h *Header) AssociatedData() ([]byte, error) {
	return h.WithZeroTag().MarshalBinary()
}

// Package pipeline implements the end-to-end orchestrator:
// chunk -> encrypt -> RS-encode -> header-stamp -> backend.Put on
// write, the reverse on read, run over a bounded worker pool.
// Structured logging follows frnd1406-NasServer's and
// ateneo-connect-zstore's shared use of github.com/sirupsen/logrus,
// replacing OhanaFS/stitch's bare log.Printf calls; the worker pool is
// golang.org/x/sync/errgroup plus golang.org/x/sync/semaphore (both
// already indirect across the pack); go.uber.org/atomic counters are
// promoted here from a transitive hashicorp/vault dependency to a
// direct, exercised use.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/saorsa-fec/fec/backend"
	"github.com/saorsa-fec/fec/chunk"
	"github.com/saorsa-fec/fec/cid"
	"github.com/saorsa-fec/fec/config"
	"github.com/saorsa-fec/fec/filemeta"
	"github.com/saorsa-fec/fec/kdf"
	"github.com/saorsa-fec/fec/rs"
	"github.com/saorsa-fec/fec/shard"
)

// ErrorKind identifies which of six failure categories a
// pipeline Error belongs to.
type ErrorKind int

const (
	InvalidParameters ErrorKind = iota
	ShardCorruption
	InsufficientShards
	BackendError
	CryptoFailure
	FormatError
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidParameters:
		return "invalid_parameters"
	case ShardCorruption:
		return "shard_corruption"
	case InsufficientShards:
		return "insufficient_shards"
	case BackendError:
		return "backend_error"
	case CryptoFailure:
		return "crypto_failure"
	case FormatError:
		return "format_error"
	default:
		return "unknown"
	}
}

// Error is the unified error type every user-visible pipeline failure
// is wrapped in, carrying the chunk index and present/required shard
// counts needed to diagnose partial failures.
type Error struct {
	Kind       ErrorKind
	ChunkIndex uint32
	Present    int
	Required   int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s at chunk %d (have %d, need %d): %v",
		e.Kind, e.ChunkIndex, e.Present, e.Required, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, chunkIndex uint32, present, required int, err error) *Error {
	return &Error{Kind: kind, ChunkIndex: chunkIndex, Present: present, Required: required, Err: err}
}

// withRetry runs fn up to policy.MaxAttempts times, doubling the delay
// between attempts starting at policy.BaseDelay and capping it at
// policy.MaxDelay. It returns fn's last error once attempts are
// exhausted, or ctx.Err() if ctx is canceled while waiting.
func withRetry(ctx context.Context, policy config.RetryPolicy, fn func() error) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := policy.BaseDelay
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return err
}

// Writer drives the write path over an entire file: chunking,
// per-chunk encode, and concurrent backend puts, accumulating a
// FileMeta as it goes.
type Writer struct {
	cfg config.Config
	be  backend.Backend
	log *logrus.Entry
}

// NewWriter returns a Writer backed by be, tuned by cfg.
func NewWriter(cfg config.Config, be backend.Backend) *Writer {
	return &Writer{cfg: cfg, be: be, log: logrus.WithField("component", "pipeline.writer")}
}

// WriteFile reads r to completion, writing every chunk's k+m shards to
// the backend and returning the resulting FileMeta. Every chunk's
// derived AEAD key is recorded in its ChunkRef (Shamir-split per
// cfg.KeyShareCount/KeyShareThreshold when configured), regardless of
// EncMode: a Convergent-mode key is a pure function of plaintext the
// reader does not yet have, so FileMeta must carry it for the file to
// be readable at all. The convergent modes still earn their
// deduplication benefit at write time, since re-deriving the same key
// for identical content lets a backend recognize (and skip
// re-uploading) shards it already has via CID.
func (w *Writer) WriteFile(ctx context.Context, fileID shard.FileID, r io.Reader, n shard.NSpec, mode kdf.Mode, secret []byte) (*filemeta.FileMeta, error) {
	if err := n.Validate(); err != nil {
		return nil, newError(InvalidParameters, 0, 0, 0, err)
	}

	sem := semaphore.NewWeighted(int64(w.cfg.InFlightPuts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.WorkerCount)

	var (
		mu         sync.Mutex
		refsByIdx  = make(map[uint32]filemeta.ChunkRef)
		totalSize  atomic.Uint64
		chunkCount atomic.Int64
	)

	for res := range chunk.Stream(r, w.cfg.ChunkSize) {
		res := res
		if res.Err != nil {
			return nil, newError(FormatError, res.Index, 0, 0, res.Err)
		}

		chunkCount.Inc()
		totalSize.Add(uint64(len(res.Plaintext)))

		g.Go(func() error {
			ref, err := w.writeChunk(gctx, sem, fileID, res.Index, res.Plaintext, n, mode, secret)
			if err != nil {
				return err
			}
			mu.Lock()
			refsByIdx[res.Index] = ref
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	chunks := make([]filemeta.ChunkRef, chunkCount.Load())
	for idx, ref := range refsByIdx {
		chunks[idx] = ref
	}

	return &filemeta.FileMeta{
		FileID:       fileID,
		TotalSize:    totalSize.Load(),
		EncMode:      mode,
		KeyThreshold: uint8(w.cfg.KeyShareThreshold),
		KeyShares:    uint8(w.cfg.KeyShareCount),
		Chunks:       chunks,
	}, nil
}

func (w *Writer) writeChunk(ctx context.Context, sem *semaphore.Weighted, fileID shard.FileID, chunkIndex uint32, plaintext []byte, n shard.NSpec, mode kdf.Mode, secret []byte) (filemeta.ChunkRef, error) {
	enc, err := chunk.Encode(fileID, chunkIndex, plaintext, n, mode, secret, w.cfg.RSBackend)
	if err != nil {
		return filemeta.ChunkRef{}, newError(CryptoFailure, chunkIndex, 0, 0, err)
	}

	cids := make([]cid.CID, len(enc.Shards))
	pg, pctx := errgroup.WithContext(ctx)
	for i, s := range enc.Shards {
		i, s := i, s
		pg.Go(func() error {
			if err := sem.Acquire(pctx, 1); err != nil {
				return newError(BackendError, chunkIndex, 0, 0, err)
			}
			defer sem.Release(1)

			hb, err := s.Header.MarshalBinary()
			if err != nil {
				return newError(FormatError, chunkIndex, 0, 0, err)
			}
			id := cid.Compute(hb, s.Payload)
			cids[i] = id

			raw := make([]byte, 0, len(hb)+len(s.Payload))
			raw = append(raw, hb...)
			raw = append(raw, s.Payload...)

			if err := withRetry(pctx, w.cfg.Retry, func() error {
				return w.be.Put(pctx, id, raw)
			}); err != nil {
				return newError(BackendError, chunkIndex, 0, 0, fmt.Errorf("put shard %d: %w", i, err))
			}
			return nil
		})
	}
	if err := pg.Wait(); err != nil {
		return filemeta.ChunkRef{}, err
	}

	ref := filemeta.NewChunkRef(chunkIndex, n, enc.ShardLen, enc.PlaintextLen, cids)
	if w.cfg.KeyShareCount > 1 {
		shares, err := filemeta.SplitChunkKey(enc.Key, w.cfg.KeyShareCount, w.cfg.KeyShareThreshold)
		if err != nil {
			return filemeta.ChunkRef{}, newError(CryptoFailure, chunkIndex, 0, 0, err)
		}
		ref.KeyShares = shares
	} else {
		ref.KeyShares = [][]byte{enc.Key}
	}

	w.log.WithFields(logrus.Fields{
		"chunk_index": chunkIndex,
		"shards":      len(enc.Shards),
	}).Debug("chunk written")

	return ref, nil
}

// Reader drives the read path: for each ChunkRef in a FileMeta, fetch
// its shards concurrently, verify and reconstruct, decrypt, and write
// the recovered plaintext to w in chunk order.
type Reader struct {
	cfg config.Config
	be  backend.Backend
	log *logrus.Entry
}

// NewReader returns a Reader backed by be, tuned by cfg.
func NewReader(cfg config.Config, be backend.Backend) *Reader {
	return &Reader{cfg: cfg, be: be, log: logrus.WithField("component", "pipeline.reader")}
}

// ReadFile reconstructs fm's chunks in order and writes their plaintext
// to dst, trimming the total to fm.TotalSize bytes.
func (rd *Reader) ReadFile(ctx context.Context, fm *filemeta.FileMeta, dst io.Writer) error {
	sem := semaphore.NewWeighted(int64(rd.cfg.InFlightPuts))

	plaintexts := make([][]byte, len(fm.Chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rd.cfg.WorkerCount)

	for i, ref := range fm.Chunks {
		i, ref := i, ref
		g.Go(func() error {
			plain, err := rd.readChunk(gctx, sem, fm.FileID, fm.EncMode, ref)
			if err != nil {
				return err
			}
			plaintexts[i] = plain
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var written uint64
	for _, p := range plaintexts {
		if written >= fm.TotalSize {
			break
		}
		remain := fm.TotalSize - written
		if uint64(len(p)) > remain {
			p = p[:remain]
		}
		if _, err := dst.Write(p); err != nil {
			return newError(FormatError, 0, 0, 0, fmt.Errorf("write output: %w", err))
		}
		written += uint64(len(p))
	}
	return nil
}

func (rd *Reader) readChunk(ctx context.Context, sem *semaphore.Weighted, fileID shard.FileID, mode kdf.Mode, ref filemeta.ChunkRef) ([]byte, error) {
	total := int(ref.K) + int(ref.M)
	raw := make([][]byte, 0, total)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < total; i++ {
		i := i
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil // context cancellation; other fetches may still suffice
			}
			defer sem.Release(1)

			var data []byte
			err := withRetry(gctx, rd.cfg.Retry, func() error {
				var getErr error
				data, getErr = rd.be.Get(gctx, ref.CID(i))
				return getErr
			})
			if err != nil {
				rd.log.WithFields(logrus.Fields{
					"chunk_index": ref.ChunkIndex,
					"shard_index": i,
				}).Debug("shard fetch failed, will rely on remaining shards")
				return nil
			}
			mu.Lock()
			raw = append(raw, data)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // errors are informational per-shard misses, not fatal here

	if len(raw) < int(ref.K) {
		return nil, newError(InsufficientShards, ref.ChunkIndex, len(raw), int(ref.K),
			fmt.Errorf("only %d of %d required shards fetched", len(raw), ref.K))
	}

	key, err := chunkKey(ref)
	if err != nil {
		return nil, newError(CryptoFailure, ref.ChunkIndex, 0, 0, err)
	}

	n := ref.NSpec()
	plaintext, err := chunk.Decode(fileID, ref.ChunkIndex, n, mode, key, int(ref.PlaintextLen), raw, rd.cfg.RSBackend)
	if err != nil {
		if errors.Is(err, rs.ErrInsufficientShards) {
			return nil, newError(InsufficientShards, ref.ChunkIndex, len(raw), int(ref.K), err)
		}
		return nil, newError(ShardCorruption, ref.ChunkIndex, len(raw), int(ref.K), err)
	}
	return plaintext, nil
}

// chunkKey recovers a chunk's AEAD key from its ChunkRef: a single
// stored share is the raw key; more than one are Shamir shares
// requiring filemeta.CombineChunkKey.
func chunkKey(ref filemeta.ChunkRef) ([]byte, error) {
	if len(ref.KeyShares) == 0 {
		return nil, fmt.Errorf("pipeline: chunk %d has no stored key material", ref.ChunkIndex)
	}
	if len(ref.KeyShares) == 1 {
		return ref.KeyShares[0], nil
	}
	return filemeta.CombineChunkKey(ref.KeyShares)
}

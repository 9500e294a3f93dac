// Package backend defines the storage contract consumed by the
// pipeline and ships three reference implementations: Memory, a sharded
// in-memory store; Disk, one file per CID under a directory; and Fanout,
// a multi-backend quorum/race composer. Remote object stores (S3 and
// the like) remain external collaborators; these exist as the test and
// reference backends, the way OhanaFS/stitch's util.Membuf backs its
// own shard I/O tests.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/orcaman/writerseeker"
	"go.uber.org/multierr"

	"github.com/saorsa-fec/fec/cid"
)

// Backend is the storage contract a shard store must satisfy:
// CID-addressed, idempotent put, get, existence check, and optional
// delete for GC.
type Backend interface {
	Put(ctx context.Context, id cid.CID, data []byte) error
	Get(ctx context.Context, id cid.CID) ([]byte, error)
	Exists(ctx context.Context, id cid.CID) (bool, error)
	Delete(ctx context.Context, id cid.CID) error
}

// ErrNotFound is returned by Get and Delete when no shard is stored
// under the given CID.
var ErrNotFound = errors.New("backend: not found")

// memoryBuckets controls the fan-out of Memory's internal sharding,
// chosen to keep lock contention low under the pipeline's concurrent
// worker pool without per-CID locking.
const memoryBuckets = 64

type memoryBucket struct {
	mu    sync.RWMutex
	items map[cid.CID]*writerseeker.WriterSeeker
}

// Memory is an in-memory Backend sharded across memoryBuckets buckets,
// each independently locked, so concurrent puts/gets to different CIDs
// rarely contend (grounded on OhanaFS/stitch's util.Membuf — a single
// io.ReadWriteSeeker buffer per shard — generalized here to a
// concurrent-safe map of such buffers, one per CID, using
// github.com/orcaman/writerseeker for the underlying seekable buffer and
// github.com/cespare/xxhash/v2 to pick a CID's bucket).
type Memory struct {
	buckets [memoryBuckets]*memoryBucket
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.buckets {
		m.buckets[i] = &memoryBucket{items: make(map[cid.CID]*writerseeker.WriterSeeker)}
	}
	return m
}

func (m *Memory) bucket(id cid.CID) *memoryBucket {
	h := xxhash.Sum64(id[:])
	return m.buckets[h%uint64(memoryBuckets)]
}

// Put stores data under id. A second Put of the same CID is a no-op,
// satisfying the idempotency requirement: re-putting an existing CID is a no-op.
func (m *Memory) Put(_ context.Context, id cid.CID, data []byte) error {
	b := m.bucket(id)
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.items[id]; ok {
		return nil
	}
	ws := &writerseeker.WriterSeeker{}
	if _, err := ws.Write(data); err != nil {
		return fmt.Errorf("backend: memory write failed: %w", err)
	}
	b.items[id] = ws
	return nil
}

// Get returns the bytes stored under id, or ErrNotFound.
func (m *Memory) Get(_ context.Context, id cid.CID) ([]byte, error) {
	b := m.bucket(id)
	b.mu.RLock()
	ws, ok := b.items[id]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	data, err := io.ReadAll(ws.BytesReader())
	if err != nil {
		return nil, fmt.Errorf("backend: memory read failed: %w", err)
	}
	return data, nil
}

// Exists reports whether id has been Put.
func (m *Memory) Exists(_ context.Context, id cid.CID) (bool, error) {
	b := m.bucket(id)
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.items[id]
	return ok, nil
}

// Delete removes id, if present. It never errors on a missing id: a
// backend's Delete is optional and only used by garbage collection.
func (m *Memory) Delete(_ context.Context, id cid.CID) error {
	b := m.bucket(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, id)
	return nil
}

// Disk is a Backend that stores each shard as a file named after its
// CID's hex string under a single directory, generalizing OhanaFS/stitch's
// CLI convention of writing each shard to fileName+".shardN" (cmd/stitch's
// main.go, pipeline_cmd.go and reedsolomon_cmd.go all os.Create/os.Open
// shards by name) from an index-addressed filename to a CID-addressed one.
type Disk struct {
	dir string
}

// NewDisk returns a Disk backend rooted at dir, creating it if necessary.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backend: failed to create disk root %s: %w", dir, err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) path(id cid.CID) string {
	return filepath.Join(d.dir, id.String())
}

// Put writes data to the file named by id's hex string. A second Put of
// the same CID is a no-op, matching Memory's idempotency.
func (d *Disk) Put(_ context.Context, id cid.CID, data []byte) error {
	p := d.path(id)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("backend: disk write failed: %w", err)
	}
	return nil
}

// Get reads the file named by id's hex string, or ErrNotFound.
func (d *Disk) Get(_ context.Context, id cid.CID) ([]byte, error) {
	data, err := os.ReadFile(d.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("backend: disk read failed: %w", err)
	}
	return data, nil
}

// Exists reports whether id's file is present.
func (d *Disk) Exists(_ context.Context, id cid.CID) (bool, error) {
	_, err := os.Stat(d.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes id's file, if present.
func (d *Disk) Delete(_ context.Context, id cid.CID) error {
	if err := os.Remove(d.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backend: disk delete failed: %w", err)
	}
	return nil
}

// Fanout composes N child backends into one logical Backend: Put fans
// out to every child, waits for all of them, and succeeds if at least a
// configurable quorum acknowledged; Get races every child and returns
// the first successful response (the bytes are not verified here). It is structurally grounded on johnjansen-torua's idea of
// treating a set of storage nodes as one logical target, simplified to
// a single-process composition since cluster membership and health
// monitoring sit outside this engine's scope.
type Fanout struct {
	children []Backend
	quorum   int
}

// ErrQuorumNotReached is returned by Fanout.Put when fewer than quorum
// children acknowledged the write.
var ErrQuorumNotReached = errors.New("backend: fanout quorum not reached")

// NewFanout returns a Fanout over children requiring quorum
// acknowledgements on Put. quorum must be in [1, len(children)].
func NewFanout(quorum int, children ...Backend) (*Fanout, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("backend: fanout requires at least one child")
	}
	if quorum < 1 || quorum > len(children) {
		return nil, fmt.Errorf("backend: quorum %d invalid for %d children", quorum, len(children))
	}
	return &Fanout{children: children, quorum: quorum}, nil
}

// Put writes to every child concurrently and waits for every child to
// finish. It returns nil if at least quorum children acknowledged, or
// ErrQuorumNotReached (wrapping every child error via
// go.uber.org/multierr) otherwise.
func (f *Fanout) Put(ctx context.Context, id cid.CID, data []byte) error {
	type outcome struct{ err error }
	results := make(chan outcome, len(f.children))

	for _, child := range f.children {
		child := child
		go func() {
			results <- outcome{err: child.Put(ctx, id, data)}
		}()
	}

	succeeded := 0
	var errs error
	for i := 0; i < len(f.children); i++ {
		r := <-results
		if r.err == nil {
			succeeded++
		} else {
			errs = multierr.Append(errs, r.err)
		}
	}
	if succeeded < f.quorum {
		return fmt.Errorf("%w: %d/%d children, last errors: %w", ErrQuorumNotReached, succeeded, f.quorum, errs)
	}
	return nil
}

// Get races every child and returns the first successful response.
func (f *Fanout) Get(ctx context.Context, id cid.CID) ([]byte, error) {
	type outcome struct {
		data []byte
		err  error
	}
	results := make(chan outcome, len(f.children))

	for _, child := range f.children {
		child := child
		go func() {
			data, err := child.Get(ctx, id)
			results <- outcome{data: data, err: err}
		}()
	}

	var errs error
	for i := 0; i < len(f.children); i++ {
		r := <-results
		if r.err == nil {
			return r.data, nil
		}
		errs = multierr.Append(errs, r.err)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, id, errs)
}

// Exists races every child and returns true on the first positive hit.
func (f *Fanout) Exists(ctx context.Context, id cid.CID) (bool, error) {
	type outcome struct {
		ok  bool
		err error
	}
	results := make(chan outcome, len(f.children))

	for _, child := range f.children {
		child := child
		go func() {
			ok, err := child.Exists(ctx, id)
			results <- outcome{ok: ok, err: err}
		}()
	}

	var errs error
	for i := 0; i < len(f.children); i++ {
		r := <-results
		if r.err == nil && r.ok {
			return true, nil
		}
		if r.err != nil {
			errs = multierr.Append(errs, r.err)
		}
	}
	return false, errs
}

// Delete fans out to every child on a best-effort basis, aggregating
// any errors; a missing shard on some children is not itself an error
// (Memory.Delete never reports one).
func (f *Fanout) Delete(ctx context.Context, id cid.CID) error {
	var errs error
	for _, child := range f.children {
		if err := child.Delete(ctx, id); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
